package templates_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/checkit/pkg/templates"
)

func TestTextRenderer_Render(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		facts   map[string]string
		text    string
		want    string
		wantErr bool
	}{
		"plain field": {
			text:  "# {{ .PROJECT_NAME }}\n",
			facts: map[string]string{"PROJECT_NAME": "checklints"},
			want:  "# checklints\n",
		},
		"sprig function": {
			text:  "{{ .PROJECT_NAME | upper }}",
			facts: map[string]string{"PROJECT_NAME": "checklints"},
			want:  "CHECKLINTS",
		},
		"multiple facts": {
			text:  "{{ .PROJECT_NAME }} ({{ .LICENSE_YEAR }})",
			facts: map[string]string{"PROJECT_NAME": "demo", "LICENSE_YEAR": "2026"},
			want:  "demo (2026)",
		},
		"missing key errors": {
			text:    "{{ .MISSING }}",
			facts:   map[string]string{},
			wantErr: true,
		},
		"parse error": {
			text:    "{{ .PROJECT_NAME",
			facts:   map[string]string{},
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := templates.NewTextRenderer()

			got, err := r.Render("test", tc.text, tc.facts)
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTextRenderer_References(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		text string
		want []string
	}{
		"single field": {
			text: "# {{ .PROJECT_NAME }}",
			want: []string{"PROJECT_NAME"},
		},
		"sorted and deduplicated": {
			text: "{{ .B }} {{ .A }} {{ .B }}",
			want: []string{"A", "B"},
		},
		"inside if": {
			text: "{{ if eq .EDITION \"2021\" }}{{ .PROJECT_NAME }}{{ end }}",
			want: []string{"EDITION", "PROJECT_NAME"},
		},
		"inside range": {
			text: "{{ range .ITEMS }}x{{ end }}{{ .NAME }}",
			want: []string{"ITEMS", "NAME"},
		},
		"piped": {
			text: "{{ .PROJECT_NAME | upper | trim }}",
			want: []string{"PROJECT_NAME"},
		},
		"no references": {
			text: "static text\n",
			want: []string{},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := templates.NewTextRenderer()

			got, err := r.References(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTextRenderer_References_ParseError(t *testing.T) {
	t.Parallel()

	r := templates.NewTextRenderer()

	_, err := r.References("{{ .BROKEN")
	require.Error(t, err)
}
