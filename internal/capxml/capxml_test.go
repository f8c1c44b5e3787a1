package capxml

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/heavy-rain.xml")
	require.NoError(t, err)
	return data
}

func TestParse_Fixture(t *testing.T) {
	var logs bytes.Buffer
	alert, err := Parse("fixture", loadFixture(t), testLogger(&logs))
	require.NoError(t, err)

	assert.Equal(t, "2.49.0.1.554.0.2026.10.14.03.00", alert.GUID)
	assert.Equal(t, "info@metservice.com", alert.Sender)
	assert.Equal(t, time.Date(2026, 10, 13, 20, 30, 0, 0, time.UTC), alert.DateSent)
	assert.Equal(t, "Actual", alert.Status)
	assert.Equal(t, "Public", alert.Scope)
	assert.Equal(t, "Alert", alert.MsgType)

	info := alert.Info
	assert.Equal(t, "Met", info.Category)
	assert.Equal(t, domain.SeverityModerate, info.Severity, "first info block only")
	assert.Equal(t, "Heavy Rain Warning - Orange", info.Headline)
	assert.Equal(t, "Prepare", info.ResponseType)
	assert.Equal(t, "MetService", info.SenderName)
	assert.Equal(t, time.Date(2026, 10, 14, 5, 0, 0, 0, time.UTC), info.Onset)
	assert.Equal(t, time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC), info.Expires)
	assert.Equal(t, map[string]string{"ColourCode": "Orange", "ChangeFlag": "New"}, info.Parameters)

	require.Len(t, info.Areas, 2)
	assert.Equal(t, "Tararua Range", info.Areas[0].Desc)
	require.Len(t, info.Areas[0].Polygons, 1)
	assert.Equal(t, orb.Point{175.2, -40.6}, info.Areas[0].Polygons[0][0][0])

	wellington := info.Areas[1]
	require.Len(t, wellington.Polygons, 1, "valid circle converted, garbage skipped")
	assert.Len(t, wellington.Polygons[0][0], domain.CircleEdges+1)

	assert.Contains(t, logs.String(), "failed to convert circle to polygon")
	assert.Contains(t, logs.String(), "circle=garbage")
}

func TestParse_CaseInsensitiveSeverity(t *testing.T) {
	doc := strings.Replace(string(loadFixture(t)), "<severity>Moderate</severity>", "<severity>SEVERE</severity>", 1)
	alert, err := Parse("fixture", []byte(doc), testLogger(new(bytes.Buffer)))
	require.NoError(t, err)
	assert.Equal(t, domain.SeveritySevere, alert.Info.Severity)
}

func TestParse_Errors(t *testing.T) {
	base := string(loadFixture(t))
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unclosed polygon",
			doc:  strings.Replace(base, "-41.0,175.2 -40.6,175.2</polygon>", "-41.0,175.2</polygon>", 1),
			want: "not closed",
		},
		{
			name: "bad coordinate",
			doc:  strings.Replace(base, "-40.6,175.6 -41.0,175.6", "-40.6;175.6 -41.0,175.6", 1),
			want: "invalid coordinate pair",
		},
		{
			name: "unknown severity",
			doc:  strings.Replace(base, "<severity>Moderate</severity>", "<severity>Mild</severity>", 1),
			want: "severity",
		},
		{
			name: "missing onset",
			doc:  strings.Replace(base, "<onset>2026-10-14T18:00:00+13:00</onset>", "", 1),
			want: "missing onset",
		},
		{
			name: "bad expires",
			doc:  strings.Replace(base, "<expires>2026-10-15T06:00:00+13:00</expires>", "<expires>tomorrow</expires>", 1),
			want: "invalid expires",
		},
		{
			name: "missing identifier",
			doc:  strings.Replace(base, "<identifier>2.49.0.1.554.0.2026.10.14.03.00</identifier>", "", 1),
			want: "missing identifier",
		},
		{
			name: "no info",
			doc:  `<alert><identifier>x</identifier><sent>2026-10-14T09:30:00Z</sent></alert>`,
			want: "missing info",
		},
		{
			name: "not cap",
			doc:  `<rss version="2.0"></rss>`,
			want: "expected element type <alert>",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("guid-1", []byte(tc.doc), testLogger(new(bytes.Buffer)))
			require.Error(t, err)

			var parseErr *domain.ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, "guid-1", parseErr.Source)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParse_OptionalFieldsDefaultEmpty(t *testing.T) {
	doc := `<alert>
  <identifier>min</identifier>
  <sent>2026-10-14T09:30:00Z</sent>
  <info>
    <severity>Minor</severity>
    <onset>2026-10-14T10:00:00Z</onset>
    <expires>2026-10-14T12:00:00Z</expires>
  </info>
</alert>`
	alert, err := Parse("min", []byte(doc), testLogger(new(bytes.Buffer)))
	require.NoError(t, err)
	assert.Equal(t, "", alert.Info.Headline)
	assert.Equal(t, "", alert.Info.Category)
	assert.Nil(t, alert.Info.Parameters)
	assert.Empty(t, alert.Info.Areas)
}
