package songlookup

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[-_a-zA-Z0-9]{11}$`)

func checkVideoID(id, where string) (string, error) {
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: invalid video id %q in %s", ErrBadInput, id, where)
	}

	return id, nil
}

// ExtractVideoID accepts a bare video id or any of the usual watch, share,
// embed and shorts urls.
func ExtractVideoID(urlOrID string) (string, error) {
	urlOrID = strings.TrimSpace(urlOrID)

	if videoIDPattern.MatchString(urlOrID) {
		return urlOrID, nil
	}

	parsed, err := url.Parse(urlOrID)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: not a video id or url", ErrBadInput)
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")

	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if parsed.Path == "/watch" {
			id := parsed.Query().Get("v")
			if id == "" {
				return "", fmt.Errorf("%w: no v query parameter in %s url", ErrBadInput, host)
			}

			return checkVideoID(id, host+" url")
		}

		for _, prefix := range []string{"/embed/", "/shorts/", "/v/"} {
			if strings.HasPrefix(parsed.Path, prefix) {
				return checkVideoID(strings.Trim(strings.TrimPrefix(parsed.Path, prefix), "/"), host+" url")
			}
		}
	case "youtu.be":
		id := strings.Trim(parsed.Path, "/")
		if id == "" {
			return "", fmt.Errorf("%w: no path content found in youtu.be url", ErrBadInput)
		}

		return checkVideoID(id, "youtu.be url")
	}

	return "", fmt.Errorf("%w: invalid url or id; could not find a known pattern", ErrBadInput)
}
