package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

func configuredSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.Embedding.APIKey = "sk-test-embedding"
	s.LLM.APIKey = "sk-test-llm"
	return s
}

func TestDoctorCmd_AllChecksPass(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	settings = configuredSettings()

	out, err := runCommand("doctor")
	require.NoError(t, err)

	assert.Contains(t, out, "[ OK ] Tesseract: tesseract 5.3.4, languages: ben")
	assert.Contains(t, out, "[ OK ] PDF renderer")
	assert.Contains(t, out, "[ OK ] Embeddings: OpenAI")
	assert.Contains(t, out, "[ OK ] Language model: OpenAI")
	assert.Contains(t, out, "All checks passed.")
}

func TestDoctorCmd_MissingLanguage(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	settings = configuredSettings()
	settings.Pipeline.OCRLanguage = "ben+hin"
	settings.OCR.FallbackLanguage = "eng"

	out, err := runCommand("doctor")
	require.Error(t, err)

	assert.Contains(t, out, "[FAIL] Tesseract")
	assert.Contains(t, out, "hin")
	assert.Contains(t, out, "tesseract-ocr-hin")
	assert.Contains(t, out, `fall back to "eng"`)
	assert.Contains(t, err.Error(), "1 of 5 checks failed")
}

func TestDoctorCmd_TesseractMissing(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	settings = configuredSettings()
	ocrTool = &mockOCRTool{err: errBoom}
	rasterTool = &mockRasterTool{err: errBoom}

	out, err := runCommand("doctor")
	require.Error(t, err)

	assert.Contains(t, out, "[FAIL] Tesseract")
	assert.Contains(t, out, "brew install tesseract")
	assert.Contains(t, out, "[FAIL] PDF renderer")
	assert.Contains(t, out, "poppler-utils")
}

func TestDoctorCmd_ProvidersNotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("doctor")
	require.Error(t, err)

	assert.Contains(t, out, "[FAIL] Embeddings")
	assert.Contains(t, out, "OPENAI_API_KEY")
	assert.Contains(t, out, "[FAIL] Language model")
}

func TestDoctorCmd_ProviderUnreachable(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()
	settings = configuredSettings()
	svc.validator.llmErr = domain.ErrLLMUnavailable

	out, err := runCommand("doctor")
	require.Error(t, err)
	assert.Contains(t, out, "[ OK ] Embeddings")
	assert.Contains(t, out, "[FAIL] Language model")
}

func TestDoctorCmd_TextLayer(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	settings = configuredSettings()
	settings.OCR.Engine = domain.OCREngineTextLayer
	ocrTool, rasterTool = nil, nil

	out, err := runCommand("doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "text layer")
}
