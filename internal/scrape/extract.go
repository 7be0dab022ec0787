package scrape

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tubewatch/yt-scraper/internal/metrics"
)

// Sentinel values persisted when every selector in a fallback list fails.
const (
	DefaultTitle      = "Unknown Title"
	DefaultDetails    = "No description available"
	DefaultAuthor     = "Unknown User"
	DefaultChannel    = "Unknown Channel"
	DefaultVideoCount = 100
)

// DefaultMaxComments caps comment extraction when the job does not say otherwise.
const DefaultMaxComments = 5

// minCommentLength filters out icon captions and UI chrome picked up by the
// broader comment selectors.
const minCommentLength = 10

// Field names used in job warnings and metrics labels.
const (
	FieldTitle      = "title"
	FieldDetails    = "details"
	FieldLikes      = "likes"
	FieldComments   = "comments"
	FieldVideoCount = "video_count"
	FieldOwner      = "owner"
)

// Selector fallback lists, ordered from the current markup to older layouts.
// These track one external site's ever-changing DOM and will degrade to the
// sentinel defaults when the markup moves again.
var (
	videoTitleSelectors = []string{
		"h1.ytd-watch-metadata yt-formatted-string",
		"h1 yt-formatted-string",
		"h1.title",
		"ytd-video-primary-info-renderer h1",
		"#title h1",
	}

	videoDetailsSelectors = []string{
		"#description-inline-expander",
		"#description",
		"ytd-video-description-renderer",
		"#content",
		".video-description",
	}

	videoLikesSelectors = []string{
		"ytd-segmented-like-dislike-button-renderer button[aria-label]",
		"like-button-view-model button[aria-label]",
		"ytd-toggle-button-renderer yt-formatted-string",
		"#text.ytd-toggle-button-renderer",
		"span.yt-core-attributed-string",
		"button[aria-label*='like']",
		"div#top-level-buttons yt-formatted-string",
	}

	videoCountSelectors = []string{
		"yt-formatted-string#videos-count",
		"#videos-count",
		"yt-formatted-string span.yt-core-attributed-string",
		"span.yt-core-attributed-string",
		"yt-formatted-string",
	}

	commentThreadSelectors = []string{
		"ytd-comment-thread-renderer",
		"ytd-comment-renderer",
	}

	commentTextSelectors = []string{
		"#content-text",
		"yt-formatted-string#content-text",
		"div#content-text",
	}

	commentAuthorSelectors = []string{
		"a#author-text",
		"#author-text",
		"ytd-comment-author-renderer a",
		"span.author",
	}

	ownerNameSelectors = []string{
		"ytd-video-owner-renderer #channel-name a",
		"#owner #channel-name a",
		"ytd-channel-name a",
	}
)

// PlaceholderComments is stored when no comments could be extracted, so the
// listing still shows that the page was visited.
func PlaceholderComments() []Comment {
	return []Comment{
		{Author: "Test User", Body: "Comments could not be loaded automatically"},
		{Author: "System", Body: "Try manual inspection or check YouTube restrictions"},
	}
}

// Document wraps a parsed page snapshot for selector-fallback extraction.
type Document struct {
	doc *goquery.Document
}

// ParseDocument parses a rendered HTML body.
func ParseDocument(body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{doc: doc}, nil
}

// VideoFields holds everything extracted from a watch page, plus the names of
// fields that fell back to their sentinel default.
type VideoFields struct {
	Title     string
	Details   string
	Likes     int
	Comments  []Comment
	Defaulted []string
}

// ExtractVideoFields runs the fallback lists for every watch-page field.
func (d *Document) ExtractVideoFields(maxComments int) VideoFields {
	fields := VideoFields{}

	title, ok := d.VideoTitle()
	fields.Title = title
	if !ok {
		fields.Defaulted = append(fields.Defaulted, FieldTitle)
	}

	details, ok := d.VideoDetails()
	fields.Details = details
	if !ok {
		fields.Defaulted = append(fields.Defaulted, FieldDetails)
	}

	likes, ok := d.VideoLikes()
	fields.Likes = likes
	if !ok {
		fields.Defaulted = append(fields.Defaulted, FieldLikes)
	}

	comments := d.Comments(maxComments)
	if len(comments) == 0 {
		comments = PlaceholderComments()
		fields.Defaulted = append(fields.Defaulted, FieldComments)
	}
	fields.Comments = comments

	return fields
}

// VideoTitle extracts the watch-page title, falling back to the og:title meta
// tag and finally the sentinel default.
func (d *Document) VideoTitle() (string, bool) {
	if text, ok := d.firstText(videoTitleSelectors); ok {
		return text, true
	}
	if content, ok := d.metaContent("og:title"); ok {
		return content, true
	}
	return DefaultTitle, false
}

// VideoDetails extracts the description block.
func (d *Document) VideoDetails() (string, bool) {
	if text, ok := d.firstText(videoDetailsSelectors); ok {
		return text, true
	}
	if content, ok := d.metaContent("og:description"); ok {
		return content, true
	}
	return DefaultDetails, false
}

// VideoLikes scans the like-button fallback list for an aria-label or text
// mentioning likes and parses its compact count. An element that mentions
// likes but carries no parseable count is counted as a parse failure.
func (d *Document) VideoLikes() (int, bool) {
	likes, found := 0, false
	sawCandidate := false
	for _, selector := range videoLikesSelectors {
		d.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text, exists := s.Attr("aria-label")
			if !exists || text == "" {
				text = s.Text()
			}
			if !containsFold(text, "like") {
				return true
			}
			if count, ok := ParseCompactCount(text); ok {
				likes, found = count, true
				return false
			}
			sawCandidate = true
			return true
		})
		if found {
			return likes, true
		}
	}
	if sawCandidate {
		metrics.ObserveParseFailure(FieldLikes)
	}
	return 0, false
}

// VideoCount extracts a channel page's uploaded-video count. The element scan
// mirrors the page layout fallbacks; meta tags are checked last because they
// survive even in the server-rendered shell.
func (d *Document) VideoCount() (int, bool) {
	count, found := 0, false
	sawCandidate := false
	for _, selector := range videoCountSelectors {
		d.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if !containsFold(text, "video") {
				return true
			}
			if n, ok := ParseCompactCount(text); ok && n > 0 {
				count, found = n, true
				return false
			}
			sawCandidate = true
			return true
		})
		if found {
			return count, true
		}
	}

	d.doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content, _ := s.Attr("content")
		if !containsFold(content, "video") {
			return true
		}
		if n, ok := ParseCompactCount(content); ok && n > 0 {
			count, found = n, true
			return false
		}
		sawCandidate = true
		return true
	})
	if !found && sawCandidate {
		metrics.ObserveParseFailure(FieldVideoCount)
	}
	return count, found
}

// OwnerName extracts the uploading channel's display name from a watch page.
func (d *Document) OwnerName() (string, bool) {
	return d.firstText(ownerNameSelectors)
}

// Comments walks comment threads and extracts up to max author/body pairs.
func (d *Document) Comments(max int) []Comment {
	if max <= 0 {
		max = DefaultMaxComments
	}

	var out []Comment
	for _, threadSelector := range commentThreadSelectors {
		d.doc.Find(threadSelector).EachWithBreak(func(_ int, thread *goquery.Selection) bool {
			body := firstTextIn(thread, commentTextSelectors)
			if len(body) <= minCommentLength {
				return true
			}
			author := firstTextIn(thread, commentAuthorSelectors)
			if author == "" {
				author = DefaultAuthor
			}
			out = append(out, Comment{Author: author, Body: body})
			return len(out) < max
		})
		if len(out) > 0 {
			return out
		}
	}

	// Bare comment text nodes outside any recognizable thread container.
	d.doc.Find("#content-text").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		body := strings.TrimSpace(s.Text())
		if len(body) <= minCommentLength {
			return true
		}
		out = append(out, Comment{Author: DefaultAuthor, Body: body})
		return len(out) < max
	})
	return out
}

func (d *Document) firstText(selectors []string) (string, bool) {
	for _, selector := range selectors {
		if text := strings.TrimSpace(d.doc.Find(selector).First().Text()); text != "" {
			return text, true
		}
	}
	return "", false
}

func (d *Document) metaContent(property string) (string, bool) {
	selector := fmt.Sprintf("meta[property=%q], meta[name=%q]", property, property)
	content, exists := d.doc.Find(selector).First().Attr("content")
	content = strings.TrimSpace(content)
	return content, exists && content != ""
}

func firstTextIn(s *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(s.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
