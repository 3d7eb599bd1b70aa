package storage

import "fmt"

// Catalog records live under podcasts/ and binary artifacts under
// episodes/<date>/. The read side discovers episodes by listing the
// podcasts/ prefix, so the catalog record is the publication act.
const (
	CatalogPrefix = "podcasts/"
	EpisodePrefix = "episodes/"
)

// CatalogPath returns the catalog record location for an episode date.
func CatalogPath(episodeID string) string {
	return fmt.Sprintf("%s%s.json", CatalogPrefix, episodeID)
}

// AudioPath returns the MP3 location for an episode date.
func AudioPath(episodeID string) string {
	return fmt.Sprintf("%s%s/episode.mp3", EpisodePrefix, episodeID)
}

// MetadataPath returns the supplemental metadata location for an episode date.
func MetadataPath(episodeID string) string {
	return fmt.Sprintf("%s%s/metadata.json", EpisodePrefix, episodeID)
}
