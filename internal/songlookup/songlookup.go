// Package songlookup turns a YouTube url or video id into a song by reading
// the player data embedded in the watch page.
package songlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"fknsrs.biz/p/playlister/models"
)

const DefaultBaseURL = "https://www.youtube.com"

var (
	ErrBadInput = errors.New("songlookup: bad input")
	ErrUpstream = errors.New("songlookup: upstream failure")
)

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func New(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

func (c *Client) getDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("songlookup.Client.getDocument: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("songlookup.Client.getDocument: %w: %w", ErrUpstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("songlookup.Client.getDocument: %w: status code: %d", ErrUpstream, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("songlookup.Client.getDocument: %w: %w", ErrUpstream, err)
	}

	return doc, nil
}

const playerResponsePrefix = "var ytInitialPlayerResponse ="

// playerResponse finds the script that assigns the player response and
// decodes the first JSON value after the assignment. Anything after it, like a
// trailing semicolon or more statements, is ignored.
func playerResponse(doc *goquery.Document) (*gabs.Container, error) {
	for _, node := range doc.Find("script").Nodes {
		if node.FirstChild == nil || node.FirstChild.Type != html.TextNode {
			continue
		}

		js := strings.TrimSpace(node.FirstChild.Data)
		if !strings.HasPrefix(js, playerResponsePrefix) {
			continue
		}

		j, err := gabs.ParseJSONDecoder(json.NewDecoder(strings.NewReader(strings.TrimPrefix(js, playerResponsePrefix))))
		if err != nil {
			return nil, fmt.Errorf("songlookup.playerResponse: %w", err)
		}

		return j, nil
	}

	return nil, fmt.Errorf("songlookup.playerResponse: no player response in page")
}

func firstString(j *gabs.Container, paths ...string) string {
	for _, path := range paths {
		if s, ok := j.Path(path).Data().(string); ok && s != "" {
			return s
		}
	}

	return ""
}

// Lookup resolves urlOrID to a song. Errors wrap ErrBadInput when the input
// can't name a video and ErrUpstream when the page couldn't be used.
func (c *Client) Lookup(ctx context.Context, urlOrID string) (*models.Song, error) {
	id, err := ExtractVideoID(urlOrID)
	if err != nil {
		return nil, fmt.Errorf("songlookup.Client.Lookup: %w", err)
	}

	doc, err := c.getDocument(ctx, c.baseURL+"/watch?v="+id)
	if err != nil {
		return nil, fmt.Errorf("songlookup.Client.Lookup: %w", err)
	}

	j, err := playerResponse(doc)
	if err != nil {
		return nil, fmt.Errorf("songlookup.Client.Lookup: %w: %w", ErrUpstream, err)
	}

	s := models.Song{
		YouTubeID: firstString(j, "videoDetails.videoId"),
		Title: firstString(j,
			"videoDetails.title",
			"microformat.playerMicroformatRenderer.title.simpleText",
		),
		Artist: firstString(j,
			"videoDetails.author",
			"microformat.playerMicroformatRenderer.ownerChannelName",
		),
	}

	// auto-generated music channels are named "<artist> - Topic"
	s.Artist = strings.TrimSuffix(s.Artist, " - Topic")

	if s.YouTubeID == "" || s.Title == "" {
		return nil, fmt.Errorf("songlookup.Client.Lookup: %w: could not find suitable data in page", ErrUpstream)
	}

	return &s, nil
}

// context registration

var clientKey int

func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, &clientKey, c)
}

func GetClient(ctx context.Context) *Client {
	if v := ctx.Value(&clientKey); v != nil {
		return v.(*Client)
	}

	return New(nil, "")
}

// middleware

func Register(c *Client) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithClient(r.Context(), c)))
	}
}
