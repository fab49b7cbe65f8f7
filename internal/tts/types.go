package tts

import "strings"

// ModelInfo describes the currently loaded model. It is embedded verbatim
// in load_model and get_model_info results.
type ModelInfo struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Device   string   `json:"device"`
	Language string   `json:"language"`
	LoadedAt string   `json:"loaded_at"`
	Speakers []string `json:"speakers"`
	UseGPU   bool     `json:"use_gpu"`
}

// LoadParams are the validated load_model parameters.
type LoadParams struct {
	ModelPath  string `json:"model_path"`
	ConfigPath string `json:"config_path"`
	SpeakerWav string `json:"speaker_wav"`
	UseGPU     bool   `json:"use_gpu"`
}

// SynthesizeParams are the validated synthesize_speech parameters.
type SynthesizeParams struct {
	Text       string  `json:"text"`
	SpeakerWav string  `json:"speaker_wav"`
	Language   string  `json:"language"`
	Speed      float64 `json:"speed"`
}

// The *Result types are the operation records embedded whole under the
// response envelope's result key. Each carries its own success flag.

type LoadResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	ModelInfo *ModelInfo `json:"model_info"`
}

type SynthesizeResult struct {
	Success        bool    `json:"success"`
	AudioData      string  `json:"audio_data"`
	AudioLength    int     `json:"audio_length"`
	TextLength     int     `json:"text_length"`
	Language       string  `json:"language"`
	SpeakerWav     string  `json:"speaker_wav"`
	ProcessingTime float64 `json:"processing_time,omitempty"`
}

type InfoResult struct {
	Success   bool       `json:"success"`
	ModelInfo *ModelInfo `json:"model_info"`
}

type UnloadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ListResult struct {
	Success      bool     `json:"success"`
	AllModels    []string `json:"all_models"`
	BanglaModels []string `json:"bangla_models"`
	TotalModels  int      `json:"total_models"`
}

// languageAliases maps a target language code to the identifier substrings
// that mark a catalog model as serving it.
var languageAliases = map[string][]string{
	"bn": {"bn", "bangla", "bengali"},
}

// FilterByLanguage returns the models whose identifiers mention the target
// language, by code or by name, case-insensitively.
func FilterByLanguage(models []string, lang string) []string {
	aliases, ok := languageAliases[strings.ToLower(lang)]
	if !ok {
		aliases = []string{strings.ToLower(lang)}
	}

	filtered := make([]string, 0, len(models))
	for _, model := range models {
		lower := strings.ToLower(model)
		for _, alias := range aliases {
			if strings.Contains(lower, alias) {
				filtered = append(filtered, model)
				break
			}
		}
	}

	return filtered
}

// inferLanguage guesses a model's primary language from its identifier.
func inferLanguage(path string) string {
	lower := strings.ToLower(path)
	for _, alias := range languageAliases["bn"] {
		if strings.Contains(lower, alias) {
			return "bn"
		}
	}
	return "multilingual"
}
