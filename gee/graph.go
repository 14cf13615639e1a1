// Package gee builds Earth Engine expression graphs and sends them to the
// Earth Engine REST API.
package gee

import (
	"encoding/json"
	"strconv"

	earthengine "google.golang.org/api/earthengine/v1"
)

// Node is a handle to a value added to a Graph
type Node struct {
	key string
}

// Graph accumulates the values of one Earth Engine expression.
// Identical values are stored once and referenced by key.
type Graph struct {
	values map[string]earthengine.ValueNode
	keys   map[string]string
}

// NewGraph returns an empty graph
func NewGraph() *Graph {
	return &Graph{
		values: map[string]earthengine.ValueNode{},
		keys:   map[string]string{},
	}
}

func (g *Graph) add(value earthengine.ValueNode) Node {
	fingerprint, err := json.Marshal(value)
	if err == nil {
		if key, ok := g.keys[string(fingerprint)]; ok {
			return Node{key: key}
		}
	}
	key := strconv.Itoa(len(g.values))
	g.values[key] = value
	if err == nil {
		g.keys[string(fingerprint)] = key
	}
	return Node{key: key}
}

func ref(n Node) earthengine.ValueNode {
	return earthengine.ValueNode{ValueReference: n.key}
}

// Constant adds a JSON-serializable literal
func (g *Graph) Constant(value interface{}) Node {
	if value == nil {
		return g.add(earthengine.ValueNode{NullValue: "NULL_VALUE"})
	}
	return g.add(earthengine.ValueNode{ConstantValue: value})
}

// Invoke adds a call of the named algorithm
func (g *Graph) Invoke(function string, args map[string]Node) Node {
	arguments := make(map[string]earthengine.ValueNode, len(args))
	for name, arg := range args {
		arguments[name] = ref(arg)
	}
	return g.add(earthengine.ValueNode{
		FunctionInvocationValue: &earthengine.FunctionInvocation{
			FunctionName: function,
			Arguments:    arguments,
		},
	})
}

// Array adds a list of values
func (g *Graph) Array(items ...Node) Node {
	values := make([]*earthengine.ValueNode, len(items))
	for i, item := range items {
		v := ref(item)
		values[i] = &v
	}
	return g.add(earthengine.ValueNode{ArrayValue: &earthengine.ArrayNode{Values: values}})
}

// Dictionary adds a map of values
func (g *Graph) Dictionary(entries map[string]Node) Node {
	values := make(map[string]earthengine.ValueNode, len(entries))
	for name, entry := range entries {
		values[name] = ref(entry)
	}
	return g.add(earthengine.ValueNode{DictionaryValue: &earthengine.DictionaryNode{Values: values}})
}

// Argument references a parameter of the enclosing function definition
func (g *Graph) Argument(name string) Node {
	return g.add(earthengine.ValueNode{ArgumentReference: name})
}

// Function adds a function definition whose body may reference its arguments
func (g *Graph) Function(body Node, argumentNames ...string) Node {
	return g.add(earthengine.ValueNode{
		FunctionDefinitionValue: &earthengine.FunctionDefinition{
			ArgumentNames: argumentNames,
			Body:          body.key,
		},
	})
}

// Expression returns the graph as an expression evaluating to result
func (g *Graph) Expression(result Node) *earthengine.Expression {
	values := make(map[string]earthengine.ValueNode, len(g.values))
	for key, value := range g.values {
		values[key] = value
	}
	return &earthengine.Expression{Result: result.key, Values: values}
}

// Len is the number of distinct values in the graph
func (g *Graph) Len() int {
	return len(g.values)
}
