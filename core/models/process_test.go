package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCorrelationIDCarriesKindPrefix(t *testing.T) {
	request := NewCorrelationID(KindRequest)
	preview := NewCorrelationID(KindPreview)

	assert.True(t, strings.HasPrefix(request, "request-"))
	assert.True(t, strings.HasPrefix(preview, "preview-"))
	assert.NotEqual(t, NewCorrelationID(KindRequest), request)
}

func TestKindOfCorrelationID(t *testing.T) {
	assert.Equal(t, KindPreview, KindOfCorrelationID(NewCorrelationID(KindPreview)))
	assert.Equal(t, KindRequest, KindOfCorrelationID(NewCorrelationID(KindRequest)))
	assert.Equal(t, KindRequest, KindOfCorrelationID("no-prefix-at-all"))
}
