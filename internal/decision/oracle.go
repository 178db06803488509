package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/market"
)

// Oracle 为决策来源的抽象，便于在测试中替换真实模型。
type Oracle interface {
	GenerateDecision(ctx context.Context, signal Signal, brief *market.Brief) (Decision, error)
}

// OracleError 表示模型调用或输出解析失败。
type OracleError struct {
	Model string
	Err   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Model, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// OpenAIOracle 通过 OpenAI 兼容接口生成决策。
type OpenAIOracle struct {
	model  string
	logger *zap.Logger
	sdk    *openai.Client
}

// NewOpenAIOracle 创建模型客户端，model 为空时使用全局默认模型。
func NewOpenAIOracle(cfg config.OpenAIConfig, model string, logger *zap.Logger) (*OpenAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		return nil, errors.New("openai model 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &OpenAIOracle{
		model:  model,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// GenerateDecision 根据信号与市场简报获取模型决策。
func (o *OpenAIOracle) GenerateDecision(ctx context.Context, signal Signal, brief *market.Brief) (Decision, error) {
	prompt, err := BuildPrompt(signal, brief)
	if err != nil {
		return Decision{}, &OracleError{Model: o.model, Err: err}
	}

	response, err := o.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		o.logger.Error("调用模型失败", zap.String("model", o.model), zap.Error(err))
		return Decision{}, &OracleError{Model: o.model, Err: err}
	}

	if len(response.Choices) == 0 {
		return Decision{}, &OracleError{Model: o.model, Err: errors.New("模型返回结果为空")}
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return Decision{}, &OracleError{Model: o.model, Err: errors.New("模型返回内容为空")}
	}

	decision, err := parseDecision(rawContent)
	if err != nil {
		o.logger.Error("解析模型决策失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return Decision{}, &OracleError{Model: o.model, Err: err}
	}

	decision = decision.Normalize()
	if err := decision.Validate(); err != nil {
		return Decision{}, &OracleError{Model: o.model, Err: err}
	}

	o.logger.Info("模型决策生成成功",
		zap.String("signal_id", signal.ID),
		zap.String("asset", signal.Asset),
		zap.String("direction", string(decision.Direction)),
		zap.Float64("confidence", decision.Confidence),
	)

	return decision, nil
}

func parseDecision(content string) (Decision, error) {
	jsonPayload, err := extractJSON(content)
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	if err = json.Unmarshal(jsonPayload, &decision); err != nil {
		return Decision{}, fmt.Errorf("解析决策JSON失败: %w", err)
	}
	return decision, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}
	return []byte(content[start : end+1]), nil
}
