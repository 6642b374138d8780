package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRoute はルーティング設定が不正な場合のエラー。
var ErrInvalidRoute = errors.New("ルーティング設定が不正です")

// Table は先頭から順に評価されるルーティングルールの一覧。
// 最初に一致したルールが採用される。
type Table struct {
	rules []Rule
}

// NewTable はルールを検証して Table を生成する。
// 重複したプレフィックスや、先行するより広いルールに隠されるルールは設定エラーとする。
func NewTable(rules []Rule) (*Table, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: ルールが1件もありません", ErrInvalidRoute)
	}

	normalized := make([]Rule, 0, len(rules))
	for i, raw := range rules {
		r, err := normalizeRule(i, raw)
		if err != nil {
			return nil, err
		}
		for _, prev := range normalized {
			if prev.Prefix == r.Prefix {
				return nil, fmt.Errorf("%w: プレフィックス %q が重複しています (%s, %s)", ErrInvalidRoute, r.Prefix, prev.Name, r.Name)
			}
			if prev.Matches(r.Prefix) {
				return nil, fmt.Errorf("%w: ルール %s は先行するルール %s (%s) に隠されます", ErrInvalidRoute, r.Name, prev.Name, prev.Prefix)
			}
		}
		normalized = append(normalized, r)
	}
	return &Table{rules: normalized}, nil
}

func normalizeRule(i int, r Rule) (Rule, error) {
	if r.Name == "" {
		r.Name = fmt.Sprintf("route-%d", i)
	}
	if r.Prefix == "" || !strings.HasPrefix(r.Prefix, "/") {
		return Rule{}, fmt.Errorf("%w: ルール %s のプレフィックス %q は / で始まる必要があります", ErrInvalidRoute, r.Name, r.Prefix)
	}
	if r.Prefix != "/" {
		r.Prefix = strings.TrimSuffix(r.Prefix, "/")
	}
	if r.Target == nil || (r.Target.Scheme != "http" && r.Target.Scheme != "https") || r.Target.Host == "" {
		return Rule{}, fmt.Errorf("%w: ルール %s の転送先URLが不正です", ErrInvalidRoute, r.Name)
	}

	switch r.Strategy {
	case "":
		r.Strategy = StrategyPreserve
	case StrategyPreserve, StrategyStrip:
	case StrategyReplace:
		if !strings.HasPrefix(r.To, "/") {
			return Rule{}, fmt.Errorf("%w: ルール %s の置換先 %q は / で始まる必要があります", ErrInvalidRoute, r.Name, r.To)
		}
	default:
		return Rule{}, fmt.Errorf("%w: ルール %s の書き換え方式 %q は未対応です", ErrInvalidRoute, r.Name, r.Strategy)
	}
	return r, nil
}

// Match はパスに最初に一致したルールを返す。
func (t *Table) Match(path string) (Rule, bool) {
	for _, r := range t.rules {
		if r.Matches(path) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules はルールの一覧のコピーを返す。
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// ParseTarget は転送先のベースURLを解析する。
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: 転送先URL %q の解析に失敗: %v", ErrInvalidRoute, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: 転送先URL %q は http(s)://host 形式である必要があります", ErrInvalidRoute, raw)
	}
	return u, nil
}

// fileConfig はルーティング設定ファイルの構造。
type fileConfig struct {
	Routes []ruleConfig `yaml:"routes"`
}

type ruleConfig struct {
	Name    string        `yaml:"name"`
	Prefix  string        `yaml:"prefix"`
	Target  string        `yaml:"target"`
	Rewrite rewriteConfig `yaml:"rewrite"`
	Auth    bool          `yaml:"auth"`
}

type rewriteConfig struct {
	Strategy string `yaml:"strategy"`
	To       string `yaml:"to"`
}

// Parse はYAML形式のルーティング設定を読み込んで Table を生成する。
// target 中の ${VAR} は環境変数で展開される。未知のキーはエラーとする。
func Parse(r io.Reader) (*Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg fileConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: YAMLの解析に失敗: %v", ErrInvalidRoute, err)
	}

	rules := make([]Rule, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		target, err := ParseTarget(os.ExpandEnv(rc.Target))
		if err != nil {
			return nil, err
		}
		rules = append(rules, Rule{
			Name:        rc.Name,
			Prefix:      rc.Prefix,
			Target:      target,
			Strategy:    Strategy(rc.Rewrite.Strategy),
			To:          rc.Rewrite.To,
			RequireAuth: rc.Auth,
		})
	}
	return NewTable(rules)
}

// LoadFile はルーティング設定ファイルを読み込む。
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ルーティング設定ファイルのオープンに失敗: %w", err)
	}
	defer f.Close()

	return Parse(f)
}
