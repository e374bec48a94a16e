package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/cythink/api/schemas"
)

func TestRateLimitedClient(t *testing.T) {
	next := new(MockTranslationClient)
	next.On("Identity").Return(schemas.BackendIdentity{Client: schemas.ClientOllama, Model: "codellama"})
	next.On("Translate", mock.Anything, mock.Anything).Return(&schemas.TranslationResult{Action: "click(a)"}, nil)

	// One request per minute: the first call passes, the second has to wait.
	client := NewRateLimitedClient(next, 1)
	assert.Equal(t, "codellama", client.Identity().Model)

	res, err := client.Translate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "click(a)", res.Action)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Translate(ctx, testInput())
	assert.ErrorContains(t, err, "rate limit wait")

	next.AssertNumberOfCalls(t, "Translate", 1)
}
