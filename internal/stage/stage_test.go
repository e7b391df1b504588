package stage

import (
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from    Stage
		want    Stage
		wantErr bool
	}{
		{NotSelected, MetadataApproved, false},
		{MetadataApproved, TitleApproved, false},
		{TitleApproved, AbstractIntroApproved, false},
		{AbstractIntroApproved, ContentApproved, false},
		{ContentApproved, ContentApproved, true},
		{Duplicate, Duplicate, true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			got, err := tt.from.Next()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, eris.Is(err, ErrNoNextStage))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrevious(t *testing.T) {
	got, err := TitleApproved.Previous()
	require.NoError(t, err)
	assert.Equal(t, MetadataApproved, got)

	_, err = NotSelected.Previous()
	assert.True(t, eris.Is(err, ErrNoPreviousStage))

	_, err = Duplicate.Previous()
	assert.True(t, eris.Is(err, ErrNoPreviousStage))
}

func TestOrderIsMonotonic(t *testing.T) {
	s := NotSelected
	for {
		next, err := s.Next()
		if err != nil {
			break
		}
		assert.Greater(t, next.Rank(), s.Rank())
		assert.True(t, next.AtLeast(s))
		assert.False(t, s.AtLeast(next))
		s = next
	}
	assert.Equal(t, ContentApproved, s)
	assert.True(t, Duplicate.AtLeast(ContentApproved))
}

func TestValueRoundTrip(t *testing.T) {
	for _, s := range All() {
		got, err := FromValue(s.Value())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := FromValue(42)
	assert.True(t, eris.Is(err, ErrUnknownStage))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Stage
	}{
		{"TITLE", TitleApproved},
		{"title", TitleApproved},
		{"TITLE_APPROVED", TitleApproved},
		{"metadata", MetadataApproved},
		{"abstract", AbstractIntroApproved},
		{"abstract-intro", AbstractIntroApproved},
		{"content", ContentApproved},
		{"duplicate", Duplicate},
		{"not_selected", NotSelected},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Parse("bogus")
	assert.Error(t, err)
}

func TestReviewStages(t *testing.T) {
	assert.Equal(t, []Stage{MetadataApproved, TitleApproved, AbstractIntroApproved, ContentApproved}, ReviewStages())
}

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Stage
	}{
		{`0`, NotSelected},
		{`4`, ContentApproved},
		{`5`, Duplicate},
		{`"TITLE_APPROVED"`, TitleApproved},
		{`"content"`, ContentApproved},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got struct {
				Selected Stage `json:"selected"`
			}
			require.NoError(t, json.Unmarshal([]byte(`{"selected":`+tt.in+`}`), &got))
			assert.Equal(t, tt.want, got.Selected)
		})
	}

	var s Stage
	assert.True(t, eris.Is(json.Unmarshal([]byte(`9`), &s), ErrUnknownStage))
	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &s))

	b, err := json.Marshal(AbstractIntroApproved)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &s))
	assert.Equal(t, AbstractIntroApproved, s)
}
