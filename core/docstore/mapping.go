package docstore

import (
	"regexp"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
)

// TypeField holds the document type in every shard.
const TypeField = "_type"

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-.]*$`)

// ValidIndexName reports whether name is usable as an index name.
func ValidIndexName(name string) bool {
	return indexNamePattern.MatchString(name) && name != "." && name != ".."
}

// BuildIndexMapping creates the mapping shared by every shard.
//
// Property values are schemaless, so fields are mapped dynamically. Strings
// use the keyword analyzer: property filters are exact matches, never full
// text. Sources are kept in the document table, so shards store nothing.
func BuildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.TypeField = TypeField
	im.DefaultAnalyzer = keyword.Name
	im.StoreDynamic = false
	im.DocValuesDynamic = false

	typeField := bleve.NewKeywordFieldMapping()
	typeField.Store = false
	typeField.IncludeInAll = false
	im.DefaultMapping.AddFieldMappingsAt(TypeField, typeField)

	return im
}

// shardDocument is the indexed form of a document: its source plus the type.
func shardDocument(docType string, source map[string]any) map[string]any {
	doc := make(map[string]any, len(source)+1)
	for k, v := range source {
		doc[k] = v
	}
	doc[TypeField] = docType
	return doc
}
