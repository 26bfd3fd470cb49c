package lifecycle

import (
	"sync"

	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/logger"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
)

// statusTable maps every local status to its ledger code. The mapping is
// lossy on purpose:
//
//	PENDING_COLLECTION, IN_TRANSIT                   -> collected
//	WAREHOUSE_RECEIVED, INSPECTING, INSPECTED        -> received
//	READY_FOR_REUSE, REFURBISHING, LISTED_FOR_SALE   -> reuse-approved
//	ART_CANDIDATE                                    -> art-approved
//	ART_LISTED_FOR_SALE                              -> art-listed
//	RECYCLED                                         -> recycled
//	REUSED                                           -> sold
var statusTable = [...]struct {
	status models.AssetStatus
	code   ledger.StatusCode
}{
	{models.StatusPendingCollection, ledger.StatusCollected},
	{models.StatusInTransit, ledger.StatusCollected},
	{models.StatusWarehouseReceived, ledger.StatusReceived},
	{models.StatusInspecting, ledger.StatusReceived},
	{models.StatusInspected, ledger.StatusReceived},
	{models.StatusReadyForReuse, ledger.StatusReuseApproved},
	{models.StatusRefurbishing, ledger.StatusReuseApproved},
	{models.StatusListedForSale, ledger.StatusReuseApproved},
	{models.StatusArtCandidate, ledger.StatusArtApproved},
	{models.StatusArtListedForSale, ledger.StatusArtListed},
	{models.StatusRecycled, ledger.StatusRecycled},
	{models.StatusReused, ledger.StatusSold},
}

// Does not compile unless statusTable has exactly one row per status in
// models.AllAssetStatuses.
var _ = [1]struct{}{}[len(statusTable)-len(models.AllAssetStatuses)]

// fallbackCode is the least destructive ledger code, used for any status the
// table does not know.
const fallbackCode = ledger.StatusCollected

var statusCodes = func() map[models.AssetStatus]ledger.StatusCode {
	m := make(map[models.AssetStatus]ledger.StatusCode, len(statusTable))
	for _, row := range statusTable {
		if _, dup := m[row.status]; dup {
			panic("lifecycle: duplicate ledger mapping for " + string(row.status))
		}
		m[row.status] = row.code
	}
	return m
}()

var fallbackWarned sync.Map

// LedgerStatus maps a local status to its ledger code. An unknown status maps
// to the fallback code and logs one warning per status.
func LedgerStatus(status models.AssetStatus, log *logger.Logger) ledger.StatusCode {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if _, seen := fallbackWarned.LoadOrStore(status, struct{}{}); !seen && log != nil {
		log.Warn("unmapped asset status, using fallback ledger code", "status", status, "ledger_status", fallbackCode)
	}
	return fallbackCode
}
