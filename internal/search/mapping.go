package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for player documents.
//
// Names use the simple analyzer (lowercased letter runs, no stemming) since
// gamer tags are not English prose. Board, player, region and tier are
// keywords for exact filters; score and mmr are numeric for sorting.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name
	nameFieldMapping.Store = true
	nameFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("player_name", nameFieldMapping)

	for _, field := range []string{"leaderboard_id", "player_id", "region", "tier"} {
		keywordFieldMapping := bleve.NewKeywordFieldMapping()
		keywordFieldMapping.Analyzer = keyword.Name
		keywordFieldMapping.Store = true
		docMapping.AddFieldMappingsAt(field, keywordFieldMapping)
	}

	for _, field := range []string{"score", "mmr"} {
		numericFieldMapping := bleve.NewNumericFieldMapping()
		numericFieldMapping.Store = true
		docMapping.AddFieldMappingsAt(field, numericFieldMapping)
	}

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
