package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "helixpass/pkg/domain-errors"
)

func TestParseConsentID(t *testing.T) {
	id := NewConsentID()
	parsed, err := ParseConsentID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseConsentID("not-a-uuid")
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))
}

func TestParseSubjectID(t *testing.T) {
	_, err := ParseSubjectID("")
	assert.True(t, dErrors.Is(err, dErrors.CodeValidation))

	s, err := ParseSubjectID("0.0.4521")
	require.NoError(t, err)
	assert.Equal(t, "0.0.4521", s.String())
}

func TestParseConsentType(t *testing.T) {
	tests := []struct {
		input string
		want  ConsentType
		ok    bool
	}{
		{"research_consent", ConsentTypeResearch, true},
		{"data_sync", ConsentTypeDataSync, true},
		{"genomic_passport", ConsentTypeGenomicPassport, true},
		{"", "", false},
		{"marketing", "", false},
	}
	for _, tc := range tests {
		got, err := ParseConsentType(tc.input)
		if tc.ok {
			require.NoError(t, err, tc.input)
			assert.Equal(t, tc.want, got)
		} else {
			assert.True(t, dErrors.Is(err, dErrors.CodeValidation), tc.input)
		}
	}
}

func TestActionForConsent(t *testing.T) {
	assert.Equal(t, ActionDataSync, ActionForConsent(ConsentTypeDataSync))
	assert.Equal(t, ActionPassportCreation, ActionForConsent(ConsentTypeGenomicPassport))
	assert.Equal(t, ActionResearchConsent, ActionForConsent(ConsentTypeResearch))
}
