package gee

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraph_ConstantsAreDeduplicated(t *testing.T) {
	g := NewGraph()

	a := g.Constant("B8")
	b := g.Constant("B8")
	c := g.Constant([]string{"B8"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, g.Len())
}

func TestGraph_InvokeReferencesArguments(t *testing.T) {
	g := NewGraph()
	id := g.Constant("COPERNICUS/S2_SR_HARMONIZED")

	load := g.Invoke("ImageCollection.load", map[string]Node{"id": id})
	expr := g.Expression(load)

	assert.Equal(t, load.key, expr.Result)
	invocation := expr.Values[load.key].FunctionInvocationValue
	assert.NotNil(t, invocation)
	assert.Equal(t, "ImageCollection.load", invocation.FunctionName)
	assert.Equal(t, id.key, invocation.Arguments["id"].ValueReference)
}

func TestGraph_FunctionDefinition(t *testing.T) {
	g := NewGraph()
	arg := g.Argument("_MAPPING_VAR_0_0")
	body := g.Invoke("Image.date", map[string]Node{"image": arg})

	fn := g.Function(body, "_MAPPING_VAR_0_0")
	expr := g.Expression(fn)

	definition := expr.Values[fn.key].FunctionDefinitionValue
	assert.NotNil(t, definition)
	assert.Equal(t, body.key, definition.Body)
	assert.Equal(t, []string{"_MAPPING_VAR_0_0"}, definition.ArgumentNames)
	assert.Equal(t, "_MAPPING_VAR_0_0", expr.Values[arg.key].ArgumentReference)
}

func TestGraph_ArrayAndDictionary(t *testing.T) {
	g := NewGraph()
	one := g.Constant(1)
	two := g.Constant(2)

	arr := g.Array(one, two)
	dict := g.Dictionary(map[string]Node{"first": one})
	expr := g.Expression(dict)

	values := expr.Values[arr.key].ArrayValue.Values
	assert.Len(t, values, 2)
	assert.Equal(t, two.key, values[1].ValueReference)
	assert.Equal(t, one.key, expr.Values[dict.key].DictionaryValue.Values["first"].ValueReference)

	_, err := json.Marshal(expr)
	assert.Nil(t, err)
}
