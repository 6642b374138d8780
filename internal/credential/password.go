package credential

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// passwordCost はbcryptのコスト。
const passwordCost = bcrypt.DefaultCost

// dummyHash はハンドルが存在しない場合にも同等の計算時間をかけるための比較対象。
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("bookgate-dummy-password"), passwordCost)

// HashPassword はパスワードのbcryptハッシュを生成する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}
	return string(hash), nil
}

// VerifyLogin はハンドルとパスワードを検証し、一致したアイデンティティを返す。
// ハンドルが存在しない場合とパスワードが一致しない場合はどちらも ErrBadLogin を返す。
func VerifyLogin(ctx context.Context, repo IdentityRepository, handle, password string) (Identity, error) {
	identity, err := repo.IdentityByHandle(ctx, NormalizeHandle(handle))
	if errors.Is(err, ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Identity{}, ErrBadLogin
	}
	if err != nil {
		return Identity{}, fmt.Errorf("アイデンティティの取得に失敗: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrBadLogin
	}
	return identity, nil
}
