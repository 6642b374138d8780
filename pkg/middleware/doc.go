// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンの検証（認証ゲート）、アクセスログ、パニックリカバリ、
// セキュリティヘッダー、CORS設定など、ゲートウェイで共通して使用するミドルウェアを含む。
package middleware
