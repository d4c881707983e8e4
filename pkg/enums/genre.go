package enums

import "fmt"

// Genre is the catalog genre taxonomy.
type Genre string

const (
	GenreRap               Genre = "Rap"
	GenreRnB               Genre = "RnB"
	GenrePop               Genre = "Pop"
	GenreHipHop            Genre = "Hip Hop"
	GenreCloud             Genre = "Cloud"
	GenrePluggnB           Genre = "PluggnB"
	GenreUKDrill           Genre = "UK Drill"
	GenreNYDrill           Genre = "NY Drill"
	GenrePhonk             Genre = "Phonk"
	GenreHyperpop          Genre = "Hyperpop"
	GenreSad               Genre = "Sad"
	GenreEmo               Genre = "Emo"
	GenreJazzRap           Genre = "Jazz Rap"
	GenreLofi              Genre = "Lofi"
	GenreMemphis           Genre = "Memphis"
	GenreSexyDrill         Genre = "Sexy Drill"
	GenreAvantGarde        Genre = "Avant-Garde"
	GenreRage              Genre = "Rage"
	GenreTrapMetal         Genre = "Trap Metal"
	GenreExperimental      Genre = "Experimental"
	GenreHorrorcore        Genre = "Horrorcore"
	GenreVaportrap         Genre = "Vaportrap"
	GenreMumble            Genre = "Mumble"
	GenreBoomBapRevival    Genre = "Boom Bap Revival"
	GenreAlternativeTrap   Genre = "Alternative Trap"
	GenreGlitchHop         Genre = "Glitch Hop"
	GenreSuperTrap         Genre = "SuperTrap"
	GenreWestCoastRevival  Genre = "West Coast Revival"
	GenreDirtySouthRevival Genre = "Dirty South Revival"
	GenreSoundCloudRap     Genre = "SoundCloud Rap"
	GenreNewJazz           Genre = "New Jazz"
	GenreMainstream        Genre = "Mainstream"
)

var validGenres = []Genre{
	GenreRap, GenreRnB, GenrePop, GenreHipHop, GenreCloud, GenrePluggnB,
	GenreUKDrill, GenreNYDrill, GenrePhonk, GenreHyperpop, GenreSad, GenreEmo,
	GenreJazzRap, GenreLofi, GenreMemphis, GenreSexyDrill, GenreAvantGarde,
	GenreRage, GenreTrapMetal, GenreExperimental, GenreHorrorcore,
	GenreVaportrap, GenreMumble, GenreBoomBapRevival, GenreAlternativeTrap,
	GenreGlitchHop, GenreSuperTrap, GenreWestCoastRevival,
	GenreDirtySouthRevival, GenreSoundCloudRap, GenreNewJazz, GenreMainstream,
}

// Genres returns the full taxonomy in display order.
func Genres() []Genre {
	out := make([]Genre, len(validGenres))
	copy(out, validGenres)
	return out
}

func (g Genre) String() string {
	return string(g)
}

func (g Genre) IsValid() bool {
	for _, candidate := range validGenres {
		if candidate == g {
			return true
		}
	}
	return false
}

func ParseGenre(value string) (Genre, error) {
	for _, candidate := range validGenres {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid genre %q", value)
}
