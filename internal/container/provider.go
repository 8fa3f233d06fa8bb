// Package container はストレージプロバイダの選択と、リポジトリ・認証サービスの
// 生成・接続・破棄をまとめて管理するサービスコンテナを提供する。
package container

import (
	"fmt"
	"strings"

	"github.com/hitoshi/focustrack/internal/model"
	"github.com/hitoshi/focustrack/internal/repository"
)

// Provider はストレージバックエンドの種類を表す。
type Provider string

const (
	// ProviderMemory はプロセス内メモリのバックエンド。
	ProviderMemory Provider = repository.ProviderMemory
	// ProviderDynamoDB はDynamoDBのバックエンド。
	ProviderDynamoDB Provider = repository.ProviderDynamoDB
	// ProviderPostgres はPostgreSQLのバックエンド。
	ProviderPostgres Provider = repository.ProviderPostgres
)

// ParseProvider は文字列をProviderに変換する。大文字小文字と前後の空白は無視する。
// 未知の値の場合はConfigurationErrorを返す。
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderMemory, ProviderDynamoDB, ProviderPostgres:
		return p, nil
	default:
		return "", model.NewConfigurationError(
			fmt.Sprintf("unknown storage provider %q (expected memory, dynamodb or postgres)", s),
		)
	}
}

// String はプロバイダ名を返す。
func (p Provider) String() string {
	return string(p)
}
