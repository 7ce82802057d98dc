// Package models defines the domain types for clustermap.
package models

import "time"

// TitleField is the Item field used for leaf labels.
const TitleField = "title"

// ClusterResult is one snapshot of a clustering run.
type ClusterResult struct {
	Query    string     `json:"query,omitempty" yaml:"query,omitempty"`
	Clusters []*Cluster `json:"clusters" yaml:"clusters"`
}

// Cluster is a labeled group of items, possibly with subclusters.
// ID is unique only within one snapshot.
type Cluster struct {
	ID          string     `json:"id" yaml:"id"`
	Label       string     `json:"label" yaml:"label"`
	Subclusters []*Cluster `json:"subclusters,omitempty" yaml:"subclusters,omitempty"`
	Items       []*Item    `json:"items,omitempty" yaml:"items,omitempty"`
}

// Item is a clustered document.
type Item struct {
	ID     string            `json:"id" yaml:"id"`
	Fields map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Title returns the item's title field, or "" when absent.
func (i *Item) Title() string {
	if i == nil || i.Fields == nil {
		return ""
	}
	return i.Fields[TitleField]
}

// Snapshot is a stored ClusterResult with its history metadata.
type Snapshot struct {
	Seq       int64          `json:"seq"`
	Source    string         `json:"source"`
	Checksum  string         `json:"checksum"`
	CreatedAt time.Time      `json:"created_at"`
	Result    *ClusterResult `json:"result,omitempty"`
}

// FileMetadata is a lightweight representation of an inbox file.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
