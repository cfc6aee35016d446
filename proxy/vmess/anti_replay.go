package vmess

import (
	"time"

	"github.com/e1732a364fed/ws_relay/utils"
	"github.com/patrickmn/go-cache"
)

// authid 在 时间窗口 内 只能用一次. 窗口是 ±120秒, 所以 记录 保留 240秒 即可.
const authid_antiReplayExpire = 2 * authID_timeMaxSecondGap * time.Second

var ErrReplayAttack = utils.ErrInErr{ErrDesc: "vmess: authid replay attack", ErrDetail: utils.ErrInvalidData}

type authid_antiReplayMachine struct {
	authidCache *cache.Cache
}

func newAuthIDAntiReplyMachine() *authid_antiReplayMachine {
	return &authid_antiReplayMachine{
		authidCache: cache.New(authid_antiReplayExpire, authid_antiReplayExpire),
	}
}

// check 返回 authid 是否是 第一次出现. go-cache 的 Add 在 key 已存在时 返回错误, 且是原子的.
func (arm *authid_antiReplayMachine) check(authid [authid_len]byte) bool {
	return arm.authidCache.Add(string(authid[:]), struct{}{}, cache.DefaultExpiration) == nil
}

func (arm *authid_antiReplayMachine) stop() {
	arm.authidCache.Flush()
}
