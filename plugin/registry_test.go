package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsinling0525/canvasflow/model"
)

func TestDefaultRegistry_Categories(t *testing.T) {
	r := DefaultRegistry()

	cases := map[model.NodeType]model.Category{
		model.TypeManualTrigger: model.CategoryTrigger,
		model.TypeAIChat:        model.CategoryAI,
		model.TypeHTTPRequest:   model.CategoryAction,
		model.TypeDataTransform: model.CategoryAction,
		model.TypeSendEmail:     model.CategoryAction,
		model.TypeIfElse:        model.CategoryLogic,
		model.TypeSwitch:        model.CategoryLogic,
		model.TypeDelay:         model.CategoryLogic,
	}
	for typ, cat := range cases {
		d, ok := r.Lookup(typ)
		require.True(t, ok, typ)
		assert.Equal(t, cat, d.Category, typ)
	}

	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestDefinition_Branching(t *testing.T) {
	r := DefaultRegistry()
	for _, d := range r.List() {
		want := d.Type == model.TypeIfElse || d.Type == model.TypeSwitch
		assert.Equal(t, want, d.Branching, d.Type)
	}
}

func TestDefinition_TemplatedFields(t *testing.T) {
	d, _ := DefaultRegistry().Lookup(model.TypeHTTPRequest)
	assert.Equal(t, []string{"url", "headers", "body"}, d.TemplatedFields())

	d, _ = DefaultRegistry().Lookup(model.TypeDataTransform)
	assert.Empty(t, d.TemplatedFields())
}

func TestRegistry_ListOrdered(t *testing.T) {
	list := DefaultRegistry().List()
	require.Len(t, list, len(Builtins()))
	assert.Equal(t, model.CategoryAction, list[0].Category)
	assert.Equal(t, model.CategoryTrigger, list[len(list)-1].Category)
}
