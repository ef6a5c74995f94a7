package costs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/fineprint/pkg/models"
)

const (
	keyPrefix       = "costs:"
	alertsKey       = "costs:alerts"
	alertFlagPrefix = "costs:alertflag:"
	eventsPrefix    = "costs:events:"
	requestsSuffix  = ":requests"
	monthLayout     = "2006-01"
)

// ErrInvalidID rejects ids that could alias another key, such as a request
// counter.
var ErrInvalidID = errors.New("id collides with ledger key layout")

// ValidUserID reports whether id can name a user in ledger keys.
func ValidUserID(id string) bool { return !strings.Contains(id, ":") }

// ValidModelID reports whether id can name a model in ledger keys. Model tags
// such as "llama3:8b" keep their colons.
func ValidModelID(id string) bool { return !strings.HasSuffix(id, requestsSuffix) }

// monthKeys builds the aggregate keys for one calendar month.
type monthKeys string

func monthOf(t time.Time) monthKeys { return monthKeys(t.UTC().Format(monthLayout)) }

func (m monthKeys) prefix() string { return keyPrefix + string(m) + ":" }

func (m monthKeys) total() string           { return m.prefix() + "total" }
func (m monthKeys) requests() string        { return m.prefix() + "requests" }
func (m monthKeys) savings() string         { return m.prefix() + "savings" }
func (m monthKeys) savingsRequests() string { return m.prefix() + "savings" + requestsSuffix }

func (m monthKeys) tier(t models.UserTier) string { return m.prefix() + "tier:" + string(t) }
func (m monthKeys) modelPrefix() string           { return m.prefix() + "model:" }
func (m monthKeys) model(id string) string        { return m.modelPrefix() + id }
func (m monthKeys) userPrefix() string            { return m.prefix() + "user:" }
func (m monthKeys) user(id string) string         { return m.userPrefix() + id }
func (m monthKeys) userTierPrefix() string        { return m.prefix() + "usertier:" }
func (m monthKeys) userTier(id string) string     { return m.userTierPrefix() + id }
func (m monthKeys) userSavings(id string) string  { return m.prefix() + "savings:user:" + id }

func requestsKey(key string) string { return key + requestsSuffix }

// dimensionIDs extracts the ids under prefix from scanned keys, skipping request counters.
func dimensionIDs(keys []string, prefix string) []string {
	var ids []string
	for _, k := range keys {
		if strings.HasSuffix(k, requestsSuffix) {
			continue
		}
		ids = append(ids, strings.TrimPrefix(k, prefix))
	}
	return ids
}

func alertFlagKey(userID string, threshold int) string {
	return fmt.Sprintf("%s%s:%d", alertFlagPrefix, userID, threshold)
}

func eventsKey(userID string) string { return eventsPrefix + userID }
