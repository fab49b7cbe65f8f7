package templates

import "os"

const configTemplate = `
environment: dev

# TTS backend: "sherpa" runs local onnx voices, "mock" needs no runtime.
backend: sherpa

# Target dubbing language. Drives the language view of the model catalog
# and the synthesis default.
language: bn

use_gpu: true
num_threads: 4
catalog_limit: 20

# Models prefetched by the download command (or run --warmup).
warmup_models: []

registry:
  cache_dir: ""
  hf_token: ""

# Extra catalog models, merged over the built-in catalog.
models: {}
#  tts_models/bn/studio/vits-bangla-studio:
#    source: hf:SiliconJelly/vits-bangla-studio
#    language: bn
`

const envTemplate = `# Secrets for the DubAI TTS bridge. Loaded into the process
# environment on startup.
# DUBAI_REGISTRY_HF_TOKEN=
`

func GetConfigTemplate() string {
	return configTemplate
}

func GetEnvTemplate() string {
	return envTemplate
}

func WriteConfig(path string) error {
	configTemplate := GetConfigTemplate()

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(configTemplate)
	if err != nil {
		return err
	}

	return nil
}

func WriteEnv(path string) error {
	envTemplate := GetEnvTemplate()

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(envTemplate)
	if err != nil {
		return err
	}

	return nil
}
