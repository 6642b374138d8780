// Package proxy はパスプレフィックスに基づいてリクエストをバックエンドへ転送するリバースプロキシを提供する。
//
// ルーティングルールは起動時に一度だけ検証され、以降は変更されない。
// リクエストとレスポンスのボディはバッファリングせずにストリーミングで中継する。
// バックエンドに到達できない場合はゲートウェイ自身が 502 Bad Gateway を返す。
package proxy
