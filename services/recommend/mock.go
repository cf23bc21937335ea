package recommend

import (
	"slices"

	"cinewise/models"
)

const fallbackLimit = 4

// fallbackCatalogue keeps the app usable without a language-service key.
var fallbackCatalogue = []models.Recommendation{
	{Title: "Inception", MediaType: models.MediaTypeMovie, Year: 2010, Reason: "Matches 'thriller' and mind-bending."},
	{Title: "Breaking Bad", MediaType: models.MediaTypeTV, Year: 2008, Reason: "High rated crime drama."},
	{Title: "The Grand Budapest Hotel", MediaType: models.MediaTypeMovie, Year: 2014, Reason: "Quirky comedy style."},
	{Title: "Arrival", MediaType: models.MediaTypeMovie, Year: 2016, Reason: "Thoughtful sci-fi drama."},
	{Title: "The Dark Knight", MediaType: models.MediaTypeMovie, Year: 2008, Reason: "Dark superhero crime thriller."},
	{Title: "Stranger Things", MediaType: models.MediaTypeTV, Year: 2016, Reason: "Nostalgic sci-fi horror."},
	{Title: "Parasite", MediaType: models.MediaTypeMovie, Year: 2019, Reason: "Social satire thriller."},
	{Title: "The Office", MediaType: models.MediaTypeTV, Year: 2005, Reason: "Classic cringe comedy."},
}

// fallbackRecommendations filters the catalogue by the full exclusion list
// (not the capped window) and returns the first few survivors.
func fallbackRecommendations(exclude []string) []models.Recommendation {
	out := make([]models.Recommendation, 0, fallbackLimit)
	for _, rec := range fallbackCatalogue {
		if slices.Contains(exclude, rec.Title) {
			continue
		}
		out = append(out, rec)
		if len(out) == fallbackLimit {
			break
		}
	}
	return out
}
