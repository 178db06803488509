package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fiamma-chain/AITradeNews/internal/config"
	"github.com/fiamma-chain/AITradeNews/internal/decision"
)

const defaultUpbitURL = "https://api-manager.upbit.com/api/v1/notices"

// 上币公告的标题关键词，韩文与英文混合。
var upbitListingKeywords = []string{
	"신규", "상장", "listing", "launch", "added", "지원", "마켓 추가",
}

// UpbitListener 轮询 Upbit 公告列表，按标题关键词识别上币公告。
// 按公告 ID 去重，首轮只记录存量公告。
type UpbitListener struct {
	url       string
	interval  time.Duration
	client    *http.Client
	mapping   *Mapping
	submitter Submitter
	logger    *zap.Logger

	mu       sync.Mutex
	seen     map[int64]struct{}
	baseline bool
}

// NewUpbit 创建 Upbit 公告监听器。
func NewUpbit(cfg config.ListenerConfig, mapping *Mapping, submitter Submitter, logger *zap.Logger) *UpbitListener {
	u := cfg.URL
	if u == "" {
		u = defaultUpbitURL
	}
	return &UpbitListener{
		url:       u,
		interval:  cfg.PollInterval,
		client:    newHTTPClient(),
		mapping:   mapping,
		submitter: submitter,
		logger:    logger,
		seen:      make(map[int64]struct{}),
	}
}

func (l *UpbitListener) Name() string { return "upbit" }

// Run 阻塞轮询直到 ctx 取消。
func (l *UpbitListener) Run(ctx context.Context) error {
	return pollLoop(ctx, l.logger, l.Name(), l.interval, l.poll)
}

type upbitNotice struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

type upbitNoticeList struct {
	Data struct {
		List []upbitNotice `json:"list"`
	} `json:"data"`
}

func (l *UpbitListener) poll(ctx context.Context) error {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("per_page", "20")
	query.Set("thread_name", "general")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("请求公告列表失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("公告接口返回状态码 %d", resp.StatusCode)
	}

	var list upbitNoticeList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("解析公告列表失败: %w", err)
	}
	notices := list.Data.List

	l.mu.Lock()
	if !l.baseline {
		for _, n := range notices {
			l.seen[n.ID] = struct{}{}
		}
		l.baseline = true
		l.mu.Unlock()
		l.logger.Info("基线建立完成",
			zap.String("listener", l.Name()),
			zap.Int("notices", len(notices)),
		)
		return nil
	}

	fresh := make([]upbitNotice, 0, len(notices))
	for _, n := range notices {
		if _, ok := l.seen[n.ID]; ok {
			continue
		}
		l.seen[n.ID] = struct{}{}
		fresh = append(fresh, n)
	}
	l.mu.Unlock()

	for _, n := range fresh {
		asset, ok := l.classify(n.Title)
		if !ok {
			continue
		}

		body := fmt.Sprintf("%s (https://upbit.com/service_center/notice?id=%s)",
			n.Title, strconv.FormatInt(n.ID, 10))
		signal := decision.NewSignal(l.Name(), asset, n.Title, body)

		l.logger.Info("发现上币公告",
			zap.String("listener", l.Name()),
			zap.String("asset", asset),
			zap.Int64("notice_id", n.ID),
		)
		l.submitter.Submit(signal)
	}
	return nil
}

// classify 判断公告标题是否为上币公告并提取币种符号。
func (l *UpbitListener) classify(title string) (string, bool) {
	lower := strings.ToLower(title)
	matched := false
	for _, kw := range upbitListingKeywords {
		if strings.Contains(lower, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	asset, ok := l.mapping.Extract(title)
	if !ok {
		l.logger.Debug("无法识别公告中的币种",
			zap.String("listener", l.Name()),
			zap.String("title", title),
		)
		return "", false
	}
	return asset, true
}
