package links

import (
	"net/url"
	"slices"
)

// CollectionAll selects links from every collection.
const CollectionAll = "All"

// FilterOptions narrows a list of links by collection, tags and media type.
type FilterOptions struct {
	Collection string
	Tags       []string
	MediaTypes []MediaType
}

// Filter returns the links matching every predicate in options, preserving input order.
// A link must carry all selected tags to match.
func Filter(items []Link, options FilterOptions) []Link {
	matched := make([]Link, 0, len(items))
	for _, item := range items {
		if matchesCollection(item, options.Collection) &&
			matchesTags(item, options.Tags) &&
			matchesMediaType(item, options.MediaTypes) {
			matched = append(matched, item)
		}
	}
	return matched
}

func matchesCollection(item Link, collection string) bool {
	if collection == CollectionAll || collection == "" {
		return true
	}
	return item.Collection != "" && item.Collection == collection
}

func matchesTags(item Link, tags []string) bool {
	for _, selected := range tags {
		if !slices.Contains(item.Tags, selected) {
			return false
		}
	}
	return true
}

func matchesMediaType(item Link, mediaTypes []MediaType) bool {
	if len(mediaTypes) == 0 {
		return true
	}
	return slices.Contains(mediaTypes, item.MediaType)
}

// FilterOptionsFromQuery reads collection, repeated tag and repeated media_type parameters.
func FilterOptionsFromQuery(values url.Values) (FilterOptions, error) {
	options := FilterOptions{
		Collection: values.Get("collection"),
		Tags:       values["tag"],
	}
	for _, raw := range values["media_type"] {
		mediaType, err := ParseMediaType(raw)
		if err != nil {
			return FilterOptions{}, err
		}
		options.MediaTypes = append(options.MediaTypes, mediaType)
	}
	return options, nil
}
