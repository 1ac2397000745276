package parser

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/logflow/tracesim/internal/model"
)

func collect(t *testing.T, p Parser, r io.Reader) ([]*model.RawEvent, error) {
	t.Helper()
	out := make(chan *model.RawEvent)
	done := make(chan struct{})
	var events []*model.RawEvent
	go func() {
		for ev := range out {
			events = append(events, ev)
		}
		close(done)
	}()
	err := p.Parse(context.Background(), r, out)
	close(out)
	<-done
	return events, err
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("runs/sim_1.csv"))
	assert.Equal(t, FormatCSV, DetectFormat("sim.CSV.gz"))
	assert.Equal(t, FormatXES, DetectFormat("log.xes"))
	assert.Equal(t, FormatXLSX, DetectFormat("log.xlsx"))
	assert.Equal(t, FormatParquet, DetectFormat("s3://b/log.parquet"))
	assert.Equal(t, FormatUnknown, DetectFormat("log.txt"))

	_, err := NewParser(FormatParquet, DefaultConfig())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCSVParser_DefaultColumns(t *testing.T) {
	in := "caseid,task,role,start_timestamp,end_timestamp,channel\n" +
		"1,Register,clerk,2024-01-01T10:00:00.000000,2024-01-01T10:05:00.000000,web\n" +
		"\n" +
		"1,\"Check, quickly\",\"the \"\"boss\"\"\",2024-01-01 10:07:00,2024-01-01 10:09:00,\r\n"

	p, err := NewParser(FormatCSV, DefaultConfig())
	require.NoError(t, err)
	events, err := collect(t, p, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, events, 2)

	ev := events[0]
	assert.Equal(t, "1", ev.CaseID)
	assert.Equal(t, "Register", ev.Activity)
	assert.Equal(t, "clerk", ev.Resource)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, 5*time.Minute, ev.End.Sub(ev.Start))
	assert.Equal(t, "web", ev.Attribute("channel"))

	assert.Equal(t, "Check, quickly", events[1].Activity)
	assert.Equal(t, `the "boss"`, events[1].Resource)
	assert.Empty(t, events[1].Attributes)
}

func TestCSVParser_XESFallbackAndTBTW(t *testing.T) {
	in := "case:concept:name;concept:name;time:timestamp;wait\n" +
		"a;A;2024-02-01T08:00:00Z;0\n" +
		"a;B;2024-02-01T08:01:30+01:00;90\n"

	cfg := DefaultConfig()
	cfg.Delimiter = ';'
	cfg.TBTWColumn = "wait"
	events, err := collect(t, NewCSVParser(cfg), strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, events[0].Start, events[0].End)
	assert.Equal(t, 90.0, events[1].TBTW)
	assert.Equal(t, time.Date(2024, 2, 1, 7, 1, 30, 0, time.UTC), events[1].Start.UTC())
	assert.Empty(t, events[1].Resource)
}

func TestCSVParser_Errors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		cfg  func(*Config)
		want error
	}{
		{"empty", "", nil, ErrInvalidCSV},
		{"missing activity", "caseid,start_timestamp\n1,2024-01-01\n", nil, ErrMissingColumn},
		{"bad timestamp", "caseid,task,start_timestamp\n1,A,yesterday\n", nil, ErrInvalidTimestamp},
		{"missing tbtw column", "caseid,task,start_timestamp\n1,A,2024-01-01\n", func(c *Config) { c.TBTWColumn = "tbtw" }, ErrMissingColumn},
		{"negative tbtw", "caseid,task,start_timestamp,tbtw\n1,A,2024-01-01,-3\n", func(c *Config) { c.TBTWColumn = "tbtw" }, ErrInvalidNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			_, err := collect(t, NewCSVParser(cfg), strings.NewReader(tc.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestCSVScanner_Split(t *testing.T) {
	s := NewCSVScanner(',')
	assert.Equal(t, []string{"a", "", "c", ""}, s.Split([]byte("a,,c,")))
	assert.Equal(t, []string{`x"y`, "z"}, s.Split([]byte(`"x""y",z`)))
	assert.Equal(t, []string{"open"}, s.Split([]byte(`"open`)))
	assert.Nil(t, s.Split(nil))
}

const sampleXES = `<?xml version="1.0" encoding="UTF-8" ?>
<log xes.version="1.0">
  <global scope="trace">
    <string key="concept:name" value="__INVALID__"/>
  </global>
  <trace>
    <string key="concept:name" value="case-1"/>
    <event>
      <string key="concept:name" value="Register &amp; Check"/>
      <string key="org:resource" value="Pete"/>
      <string key="lifecycle:transition" value="complete"/>
      <date key="time:timestamp" value="2010-12-30T11:02:00.000+01:00"/>
    </event>
    <event>
      <string key="concept:name" value="Decide"/>
      <date key="time:timestamp" value="2010-12-30T14:32:00.000+01:00"/>
    </event>
  </trace>
  <trace>
    <string key="concept:name" value="case-2"/>
    <event>
      <string key="concept:name" value="Register &amp; Check"/>
      <date key="time:timestamp" value="2010-12-31T09:00:00.000+01:00"/>
    </event>
  </trace>
</log>
`

func TestXESParser(t *testing.T) {
	events, err := collect(t, NewXESParser(DefaultConfig()), strings.NewReader(sampleXES))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "case-1", events[0].CaseID)
	assert.Equal(t, "Register & Check", events[0].Activity)
	assert.Equal(t, "Pete", events[0].Resource)
	assert.Equal(t, "complete", events[0].Attribute("lifecycle:transition"))
	assert.Equal(t, time.Date(2010, 12, 30, 10, 2, 0, 0, time.UTC), events[0].Start.UTC())
	assert.Equal(t, events[0].Start, events[0].End)

	assert.Equal(t, "Decide", events[1].Activity)
	assert.Equal(t, "case-2", events[2].CaseID)
}

func TestXESParser_MissingTimestamp(t *testing.T) {
	in := `<log><trace><string key="concept:name" value="1"/><event><string key="concept:name" value="A"/></event></trace></log>`
	_, err := collect(t, NewXESParser(DefaultConfig()), strings.NewReader(in))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestXLSXParser(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Case ID", "Activity", "Resource", "start_timestamp"},
		{"7", "Ship", "bob", "2024-05-02T09:30:00"},
		{},
		{"7", "Bill", "amy", "2024-05-02T11:00:00"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	events, err := collect(t, NewXLSXParser(DefaultConfig()), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "7", events[0].CaseID)
	assert.Equal(t, "Ship", events[0].Activity)
	assert.Equal(t, "amy", events[1].Resource)
	assert.Equal(t, 90*time.Minute, events[1].Start.Sub(events[0].Start))
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"2024-01-02T03:04:05.123456", time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC)},
		{"2024-01-02 03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2024-01-02T03:04:05-0200", time.Date(2024, 1, 2, 5, 4, 5, 0, time.UTC)},
		{"45000.5", time.Date(2023, 3, 15, 12, 0, 0, 0, time.UTC)},
		{"2024/01/02 03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in, "")
		require.NoError(t, err, tc.in)
		assert.True(t, tc.want.Equal(got), "%s: got %v", tc.in, got)
	}

	got, err := ParseTimestamp("02.01.2024", "02.01.2006")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), got)

	for _, bad := range []string{"", "2024-13-01", "2024-01-02T25:00:00", "noon"} {
		_, err := ParseTimestamp(bad, "")
		assert.ErrorIs(t, err, ErrInvalidTimestamp, bad)
	}
}
