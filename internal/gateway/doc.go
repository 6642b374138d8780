// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// ハンドルとパスワードによるログイン、アクセストークンと更新トークンの発行・更新・失効、
// ルーティングテーブルに従ったバックエンドへの転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、認証済みリクエストには
// アイデンティティを X-User-ID ヘッダーとして付与してから転送する。
package gateway
