package metadata

import (
	"strings"

	"cinewise/models"
)

// trailerSite is the only video platform whose clips the UI can embed.
const trailerSite = "YouTube"

type trailerRule struct {
	name  string
	match func(models.Video) bool
}

// trailerPolicy is evaluated top to bottom; the first rule with a match wins.
// Official trailers come first because they are the clips most likely to be
// embeddable.
var trailerPolicy = []trailerRule{
	{name: "official trailer", match: func(v models.Video) bool { return v.Type == "Trailer" && v.Official }},
	{name: "trailer", match: func(v models.Video) bool { return v.Type == "Trailer" }},
	{name: "official teaser", match: func(v models.Video) bool { return v.Type == "Teaser" && v.Official }},
	{name: "any video", match: func(models.Video) bool { return true }},
}

// SelectTrailer returns the key of the best embeddable video, or "" when the
// platform has no videos for the title.
func SelectTrailer(videos []models.Video) string {
	hosted := make([]models.Video, 0, len(videos))
	for _, v := range videos {
		if strings.EqualFold(v.Site, trailerSite) && v.Key != "" {
			hosted = append(hosted, v)
		}
	}

	for _, rule := range trailerPolicy {
		for _, v := range hosted {
			if rule.match(v) {
				return v.Key
			}
		}
	}
	return ""
}
