package dataset

import (
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagTracks(t *testing.T) {
	in := "Ptt,Date,Most.Likely.Latitude,Most.Likely.Longitude\n" +
		"229014,2023-07-04,44.6,-124.1\n" +
		"229014,2023-07-05,44.9,-124.6\n"

	job, err := TagTracks(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, TagTracksTable, job.Options.Table)
	assert.Equal(t, domain.WriteReplace, job.Options.Mode)
	assert.Equal(t, "Date", job.Options.TimestampColumn)
	assert.Equal(t, []string{"Date"}, job.Options.DropColumns)
	assert.Empty(t, job.Options.LatColumn, "tracks carry no spatial keys")

	for _, c := range []string{"ptt", "latitude", "longitude", "Date"} {
		assert.True(t, job.Batch.Has(c), c)
	}
	v, _ := job.Batch.Value(0, "ptt")
	assert.Equal(t, "229014", v)
}

func TestTagInventory(t *testing.T) {
	in := "Ptt,tag.model,deploy.date.GMT,end.date.time.GMT,deploy.latitude,Region\n" +
		"229014,MiniPAT,2023-07-01,2023-10-01 12:00:00,44.6,Oregon\n"

	job, err := TagInventory(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, TagContextTable, job.Options.Table)
	assert.Empty(t, job.Options.TimestampColumn)
	v, _ := job.Batch.Value(0, "end_date")
	assert.Equal(t, time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC), v)
	for _, c := range []string{"ptt", "tag_model", "deploy_date", "deploy_latitude", "region"} {
		assert.True(t, job.Batch.Has(c), c)
	}
}

func TestTagTimeSeries(t *testing.T) {
	in := "Ptt,date.time.GMT,depth.m,temp.c\n" +
		"229014,2023-07-04 06:00:00,12.5,14.1\n" +
		"229014,2023-07-04 06:05:00,NA,14.0\n"

	job, err := TagTimeSeries(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, TagDataTable, job.Options.Table)
	assert.Equal(t, "datetime", job.Options.TimestampColumn)
	assert.False(t, job.Batch.Has("date.time.GMT"))

	v, _ := job.Batch.Value(1, "depth_m")
	assert.Nil(t, v)
	v, _ = job.Batch.Value(0, "temperature_c")
	assert.InDelta(t, 14.1, v, 1e-9)
}
