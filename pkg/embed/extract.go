package embed

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

const (
	additionalDataMarker = "window.__additionalDataLoaded('extra',"
	timeSliceMarker      = `requireLazy(["TimeSliceImpl"`
)

// scripts returns the text of every inline script on the page
func scripts(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if text := s.Text(); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// additionalData finds the argument of the inline
// window.__additionalDataLoaded('extra', ...) call carrying shortcode_media
func additionalData(doc *goquery.Document) (json.RawMessage, bool) {
	for _, text := range scripts(doc) {
		idx := strings.Index(text, additionalDataMarker)
		if idx < 0 {
			continue
		}
		payload := strings.TrimSpace(text[idx+len(additionalDataMarker):])
		payload = strings.TrimSuffix(payload, ";")
		payload = strings.TrimSuffix(payload, ")")

		var probe struct {
			ShortcodeMedia json.RawMessage `json:"shortcode_media"`
		}
		if err := json.Unmarshal([]byte(payload), &probe); err != nil {
			continue
		}
		if len(probe.ShortcodeMedia) == 0 || string(probe.ShortcodeMedia) == "null" {
			continue
		}
		return json.RawMessage(payload), true
	}
	return nil, false
}

// timeSliceStrings tokenizes the TimeSliceImpl bootstrap scripts and returns
// the decoded contents of every string literal mentioning marker. The
// literals hold JSON documents, escaped once more as JS strings.
func timeSliceStrings(doc *goquery.Document, marker string) []string {
	var out []string
	for _, text := range scripts(doc) {
		idx := strings.Index(text, timeSliceMarker)
		if idx < 0 || !strings.Contains(text[idx:], marker) {
			continue
		}

		lexer := js.NewLexer(parse.NewInputString(text[idx:]))
		for {
			tt, data := lexer.Next()
			if tt == js.ErrorToken {
				break
			}
			if tt != js.StringToken || !bytes.Contains(data, []byte(marker)) {
				continue
			}
			if s, ok := unquote(data); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// unquote decodes a double-quoted JS string literal
func unquote(literal []byte) (string, bool) {
	if len(literal) < 2 || literal[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(literal, &s); err != nil {
		return "", false
	}
	return s, true
}

// timeSliceGQLData returns the gql_data object of the first TimeSliceImpl
// payload that has one
func timeSliceGQLData(doc *goquery.Document) (json.RawMessage, bool) {
	for _, s := range timeSliceStrings(doc, "shortcode_media") {
		var payload struct {
			GQLData json.RawMessage `json:"gql_data"`
		}
		if err := json.Unmarshal([]byte(s), &payload); err != nil {
			continue
		}
		if len(payload.GQLData) == 0 || string(payload.GQLData) == "null" {
			continue
		}
		return payload.GQLData, true
	}
	return nil, false
}
