package battle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeDocumentNeutralDefaults(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		doc  *fakeDoc
	}{
		{"error", &fakeDoc{err: fmt.Errorf("eval: %w", ErrNavigationInterrupted), present: map[string]bool{".a": true}, clicks: map[string]int{}, reads: map[string]int{}}},
		{"panic", &fakeDoc{panics: true, present: map[string]bool{".a": true}, clicks: map[string]int{}, reads: map[string]int{}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := safeDocument{doc: tc.doc, logger: discardLogger()}
			assert.False(t, s.Exists(ctx, ".a", 0, true))
			assert.False(t, s.AnyExists(ctx, []string{".a", ".b"}))
			assert.Empty(t, s.ReadText(ctx, ".a"))
			assert.Equal(t, SampledState{}, s.Sample(ctx))
		})
	}
}

func TestSafeDocumentPassesThrough(t *testing.T) {
	ctx := context.Background()
	d := newFakeDoc(".a")
	d.setHonors(42)
	s := safeDocument{doc: d, logger: discardLogger()}

	assert.True(t, s.Exists(ctx, ".a", 0, true))
	assert.False(t, s.Exists(ctx, "", 0, true))
	assert.True(t, s.AnyExists(ctx, []string{".b", ".a"}))
	assert.Equal(t, ".a", s.ReadText(ctx, ".a"))
	st := s.Sample(ctx)
	if assert.NotNil(t, st.Honors) {
		assert.Equal(t, 42, *st.Honors)
	}

	d.err = errors.New("boom")
	assert.Error(t, s.Click(ctx, ".a"))
	assert.Error(t, s.Reload(ctx))
}
