package nlp

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// KeywordFile is the on-disk override for the keyword table and the
// confirmation word lists.
//
//	categories:
//	  - intent: transfer
//	    keywords: [转账, send]
//	confirmation:
//	  affirmative: [是的, yes]
//	  negative: [取消, no]
type KeywordFile struct {
	Categories   []Category `yaml:"categories" validate:"dive"`
	Confirmation struct {
		Affirmative []string `yaml:"affirmative" validate:"dive,required"`
		Negative    []string `yaml:"negative" validate:"dive,required"`
	} `yaml:"confirmation"`
}

func LoadKeywordFile(path string) (KeywordFile, error) {
	var kf KeywordFile

	data, err := os.ReadFile(path)
	if err != nil {
		return kf, fmt.Errorf("read keyword file: %w", err)
	}

	if err := yaml.Unmarshal(data, &kf); err != nil {
		return kf, fmt.Errorf("parse keyword file %s: %w", path, err)
	}

	if err := validator.New().Struct(kf); err != nil {
		return kf, fmt.Errorf("invalid keyword file %s: %w", path, err)
	}

	return kf, nil
}
