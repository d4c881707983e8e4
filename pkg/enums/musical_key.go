package enums

import "fmt"

// MusicalKey is the tonal key of a composition, e.g. "C# Minor".
type MusicalKey string

var pitchClasses = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var validMusicalKeys = func() []MusicalKey {
	keys := make([]MusicalKey, 0, len(pitchClasses)*2)
	for _, pitch := range pitchClasses {
		keys = append(keys, MusicalKey(pitch+" Major"), MusicalKey(pitch+" Minor"))
	}
	return keys
}()

func (k MusicalKey) String() string {
	return string(k)
}

func (k MusicalKey) IsValid() bool {
	for _, candidate := range validMusicalKeys {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseMusicalKey(value string) (MusicalKey, error) {
	key := MusicalKey(value)
	if !key.IsValid() {
		return "", fmt.Errorf("invalid musical key %q", value)
	}
	return key, nil
}
