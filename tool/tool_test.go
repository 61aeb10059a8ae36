package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-substrate/substrate/errs"
)

type upperTool struct{}

func (upperTool) Describe() Spec {
	return Spec{
		Name:          "upper",
		Description:   "uppercases a string",
		Category:      "text",
		SecurityLevel: SecuritySafe,
		Schema: Schema{
			Parameters: []Parameter{
				{Name: "text", Type: "string", Required: true},
			},
			Returns: Returns{Type: "string"},
		},
	}
}

func (upperTool) Execute(_ context.Context, params map[string]any) (map[string]any, error) {
	s, _ := params["text"].(string)
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return map[string]any{"text": string(out)}, nil
}

func TestValidateParams_RejectsMissingRequiredField(t *testing.T) {
	err := ValidateParams(upperTool{}, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestValidateParams_RejectsWrongType(t *testing.T) {
	err := ValidateParams(upperTool{}, map[string]any{"text": 42})
	assert.Error(t, err)
}

func TestValidateParams_AcceptsValidParams(t *testing.T) {
	err := ValidateParams(upperTool{}, map[string]any{"text": "hello"})
	assert.NoError(t, err)
}

func TestDispatch_ValidatesThenExecutes(t *testing.T) {
	out, err := Dispatch(context.Background(), upperTool{}, map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out["text"])
}

func TestDispatch_RejectsBeforeExecuting(t *testing.T) {
	out, err := Dispatch(context.Background(), upperTool{}, map[string]any{})
	assert.Error(t, err)
	assert.Nil(t, out)
}
