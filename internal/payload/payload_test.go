package payload

import (
	"errors"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("flat payload", func(t *testing.T) {
		r, err := Decode([]byte(`{"header_headline":"Cost Guide","hero_text_left":"Dementia","svc2_name":"","Status":null}`))
		require.NoError(t, err)
		assert.Equal(t, "Cost Guide", r.Headline())
		assert.Equal(t, []string{"header_headline", "hero_text_left"}, r.Keys())
		assert.Empty(t, r.Get("svc2_name"))
	})

	t.Run("n8n rows envelope", func(t *testing.T) {
		r, err := Decode([]byte(`{"rows":[{"header_headline":"First"},{"header_headline":"Second"}]}`))
		require.NoError(t, err)
		assert.Equal(t, "First", r.Headline())
		assert.NotContains(t, r.Keys(), "rows")
	})

	t.Run("numbers are stringified", func(t *testing.T) {
		r, err := Decode([]byte(`{"header_headline":"H","nc_order":12,"hero_excerpt":3.50}`))
		require.NoError(t, err)
		assert.Equal(t, "12", r.Get("nc_order"))
		assert.Equal(t, "3.50", r.Get("hero_excerpt"))
	})

	t.Run("unknown keys are kept but unused", func(t *testing.T) {
		r, err := Decode([]byte(`{"header_headline":"H","DraftURL":"https://x"}`))
		require.NoError(t, err)
		assert.Equal(t, "https://x", r.Get("DraftURL"))
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := Decode([]byte(`[1,2]`))
		assert.ErrorIs(t, err, ErrInvalid)
		_, err = Decode([]byte(`null`))
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("nested value rejected", func(t *testing.T) {
		_, err := Decode([]byte(`{"header_headline":"H","hero_excerpt":{"a":1}}`))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []FieldError{{Field: "hero_excerpt", Message: "must be a string or number"}}, verr.Details)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		fields []string
	}{
		{"ok", map[string]string{"header_headline": "H", "page_design": "b", "hero_preposition": "in"}, nil},
		{"missing headline", map[string]string{"hero_text_left": "x"}, []string{"header_headline"}},
		{"bad design", map[string]string{"header_headline": "H", "page_design": "d"}, []string{"page_design"}},
		{"long preposition", map[string]string{"header_headline": "H", "hero_preposition": "near"}, []string{"hero_preposition"}},
		{"several", map[string]string{"page_design": "z", "nc_order": "abc"}, []string{"header_headline", "nc_order", "page_design"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(New(tt.values))
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.ErrorIs(t, err, ErrInvalid)
			var got []string
			for _, d := range verr.Details {
				got = append(got, d.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestFirst(t *testing.T) {
	r := New(map[string]string{"below_text": "legacy", "below_content": "current"})
	v, k := r.First("below_content", "below_text")
	assert.Equal(t, "current", v)
	assert.Equal(t, "below_content", k)

	r = New(map[string]string{"below_text": "legacy", "below_content": ""})
	v, k = r.First("below_content", "below_text")
	assert.Equal(t, "legacy", v)
	assert.Equal(t, "below_text", k)

	v, k = Request{}.First("x")
	assert.Empty(t, v)
	assert.Empty(t, k)
}

func TestMapIsACopy(t *testing.T) {
	r := New(map[string]string{"header_headline": "H"})
	m := r.Map()
	m["header_headline"] = "changed"
	assert.Equal(t, "H", r.Headline())
}

func TestSample(t *testing.T) {
	r := Sample(time.UnixMilli(1700000000000))
	require.NoError(t, Validate(r))
	assert.Equal(t, "Test Landing Page 1700000000000", r.Headline())
	assert.Equal(t, "Elite Care", r.Get("svc4_name"))
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"header_headline":"H"}`))
	f.Add([]byte(`{"rows":[{"header_headline":"H","nc_order":1}]}`))
	f.Add([]byte(`{"rows":[]}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		r, err := Decode(data)
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalid)
			return
		}
		assert.NotEmpty(t, r.Headline())
	})
}

func FuzzFromMap(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		values := map[string]string{}
		if err := c.FuzzMap(&values); err != nil {
			return
		}
		raw := make(map[string]any, len(values))
		for k, v := range values {
			raw[k] = v
		}
		r, err := FromMap(raw)
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalid)
			return
		}
		for _, k := range r.Keys() {
			assert.NotEmpty(t, r.Get(k))
		}
	})
}
