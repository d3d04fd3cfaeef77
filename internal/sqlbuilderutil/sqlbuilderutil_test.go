package sqlbuilderutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type trackRecord struct {
	ID        int    `sql:",table:tracks"`
	YouTubeID string `sql:"youtube_id"`
	Title     string
	Scratch   string `sql:"-"`
}

func TestMakeTable(t *testing.T) {
	a := assert.New(t)

	tbl, err := MakeTable(trackRecord{})
	if !a.NoError(err) {
		return
	}

	a.Equal(map[string]string{
		"ID":         "id",
		"id":         "id",
		"YouTubeID":  "youtube_id",
		"youtubeid":  "youtube_id",
		"youtube_id": "youtube_id",
		"Title":      "title",
		"title":      "title",
	}, tbl.columns)

	a.NotNil(tbl.C("YouTubeID"))
}
