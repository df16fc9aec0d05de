package handler

import (
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/libraryaddict/KolFaxBot/internal/kol"
	"github.com/libraryaddict/KolFaxBot/internal/model"
	"github.com/libraryaddict/KolFaxBot/internal/repository"
	"github.com/libraryaddict/KolFaxBot/internal/service"
	"github.com/libraryaddict/KolFaxBot/pkg/apierror"
	"github.com/libraryaddict/KolFaxBot/pkg/response"
)

// A random clan's fax only makes the public monster list once it sat
// unchanged for this long before the last probe.
const reliableAfter = 7 * 24 * time.Hour

const recentFaxLimit = 50

// ReportHandler serves the read-only JSON reports.
type ReportHandler struct {
	session  kol.Session
	registry *service.ClanRegistry
	catalog  *service.MonsterCatalog
	admin    *service.Administration
	faxLog   repository.FaxLogRepository
}

func NewReportHandler(session kol.Session, registry *service.ClanRegistry,
	catalog *service.MonsterCatalog, admin *service.Administration,
	faxLog repository.FaxLogRepository) *ReportHandler {
	return &ReportHandler{
		session:  session,
		registry: registry,
		catalog:  catalog,
		admin:    admin,
		faxLog:   faxLog,
	}
}

type statusReport struct {
	BotName     string               `json:"botName"`
	BotID       int64                `json:"botId"`
	LoggedIn    bool                 `json:"loggedIn"`
	CurrentClan string               `json:"currentClan,omitempty"`
	Clans       model.ClanStatistics `json:"clans"`
}

// Status reports the bot's identity and session state.
func (h *ReportHandler) Status(w http.ResponseWriter, r *http.Request) {
	player := h.session.Player()

	report := statusReport{
		BotName:  player.Name,
		BotID:    player.ID,
		LoggedIn: !h.session.IsLoggedOut(),
		Clans:    h.registry.Statistics(),
	}

	if clan := h.session.CurrentClan(); clan != nil {
		report.CurrentClan = clan.Name
	}

	response.OK(w, report)
}

type sourceClanReport struct {
	Name    string `json:"name"`
	Monster string `json:"monster,omitempty"`
}

type lookingForReport struct {
	Clan    string `json:"clan"`
	Title   string `json:"title"`
	Monster string `json:"monster"`
}

type clansReport struct {
	SourceClans int                `json:"sourceClans"`
	OtherClans  int                `json:"otherClans"`
	Sources     []sourceClanReport `json:"sources"`
	LookingFor  []lookingForReport `json:"lookingFor,omitempty"`
}

// Clans reports the network shape: counts, what each source clan offers, and
// which titled source clans still hold the wrong monster.
func (h *ReportHandler) Clans(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Statistics()

	report := clansReport{
		SourceClans: stats.SourceClans,
		OtherClans:  stats.OtherClans,
	}

	for _, clan := range h.registry.Clans() {
		if clan.Type() != model.ClanTypeFaxSource {
			continue
		}

		entry := sourceClanReport{Name: clan.Name}

		if monster, ok := h.catalog.ByID(clan.FaxMonsterID); ok {
			entry.Monster = monster.PreferredName()
		}

		report.Sources = append(report.Sources, entry)

		// A titled source clan still waiting on its assigned monster.
		wanted := clan.TitledMonsterID()

		if wanted != 0 && wanted != clan.FaxMonsterID {
			monster, ok := h.catalog.ByID(wanted)
			if !ok {
				continue
			}

			report.LookingFor = append(report.LookingFor, lookingForReport{
				Clan:    clan.Name,
				Title:   clan.Title,
				Monster: monster.PreferredName(),
			})
		}
	}

	sort.Slice(report.Sources, func(i, j int) bool {
		return report.Sources[i].Name < report.Sources[j].Name
	})
	sort.Slice(report.LookingFor, func(i, j int) bool {
		return report.LookingFor[i].Monster < report.LookingFor[j].Monster
	})

	response.OK(w, report)
}

type monsterReport struct {
	Name     string `json:"name"`
	Command  string `json:"command"`
	Category string `json:"category"`
}

// Monsters lists every monster reliably available in the network, in the
// `[id]name` command form requests can use verbatim. Source clans always
// count; a random clan's fax counts once it has sat unchanged for a week
// before the last probe.
func (h *ReportHandler) Monsters(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]bool)

	var monsters []monsterReport

	for _, clan := range h.registry.Clans() {
		if !clan.HasFax() || !reliableClan(&clan) {
			continue
		}

		monster, ok := h.catalog.ByID(clan.FaxMonsterID)
		if !ok {
			log.Printf("[ReportHandler] Unable to find monster %d offered by %s",
				clan.FaxMonsterID, clan.Name)

			continue
		}

		command := monster.Command()

		if seen[command] {
			continue
		}

		seen[command] = true

		monsters = append(monsters, monsterReport{
			Name:     monster.PreferredName(),
			Command:  command,
			Category: string(monster.Category),
		})
	}

	sort.Slice(monsters, func(i, j int) bool { return monsters[i].Name < monsters[j].Name })

	response.OK(w, map[string]interface{}{"monsters": monsters})
}

func reliableClan(clan *model.Clan) bool {
	if clan.Type() == model.ClanTypeFaxSource {
		return true
	}

	if clan.FaxLastChanged.IsZero() || clan.LastChecked.IsZero() {
		return false
	}

	return clan.FaxLastChanged.Add(reliableAfter).Before(clan.LastChecked)
}

type faxesReport struct {
	Statistics model.FaxStatistics `json:"statistics"`
	Recent     []model.FaxEntry    `json:"recent"`
	Active     []model.FaxEntry    `json:"active,omitempty"`
}

// Faxes reports the fax log: totals, top requests, the newest persisted
// entries and whatever is still in the short-lived ledger.
func (h *ReportHandler) Faxes(w http.ResponseWriter, r *http.Request) {
	stats, err := h.faxLog.Statistics(r.Context())
	if err != nil {
		log.Printf("[ReportHandler] Failed to load fax statistics: %v", err)
		response.Error(w, apierror.InternalError("failed to load fax statistics"))

		return
	}

	recent, err := h.faxLog.RecentFaxes(r.Context(), recentFaxLimit)
	if err != nil {
		log.Printf("[ReportHandler] Failed to load recent faxes: %v", err)
		response.Error(w, apierror.InternalError("failed to load recent faxes"))

		return
	}

	response.OK(w, faxesReport{
		Statistics: stats,
		Recent:     recent,
		Active:     h.admin.Ledger(),
	})
}
