// Package httpclient は上流サービスへの接続に使用するHTTPトランスポートを提供する。
//
// 接続確立とレスポンスヘッダー受信にのみタイムアウトを設け、
// ボディの転送時間には上限を設けない。ストリーミング応答を途中で切らないためである。
package httpclient
