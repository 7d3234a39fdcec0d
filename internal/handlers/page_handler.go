package handlers

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"merchant-admin/internal/middleware"
	"merchant-admin/internal/models"
	"merchant-admin/internal/services"
	"merchant-admin/internal/view"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.New("pages").Funcs(template.FuncMap{
	"fieldRow": func(merchantID, name string, editor *view.FieldEditor, canEdit bool) fieldRow {
		return fieldRow{MerchantID: merchantID, Name: name, Editor: editor, CanEdit: canEdit}
	},
}).ParseFS(templateFS, "templates/*.html"))

type pageMeta struct {
	Title    string
	Operator string
	Refresh  bool
}

type loginPage struct {
	pageMeta
	Email string
	Error string
}

type listPage struct {
	pageMeta
	Merchants []*models.Merchant
	Page      int
	Pages     int
	Prev      int
	Next      int
	HasPrev   bool
	HasNext   bool
	Deleted   string
	Error     string
}

type detailPage struct {
	pageMeta
	Model    view.DetailModel
	Merchant *models.Merchant
	Name     *view.FieldEditor
	Email    *view.FieldEditor
	Phone    *view.FieldEditor
	Avatar   *view.FieldEditor
	Bids     []view.BidRow
	CanEdit  bool
	Error    string
}

type fieldRow struct {
	MerchantID string
	Name       string
	Editor     *view.FieldEditor
	CanEdit    bool
}

type errorPage struct {
	pageMeta
	Status     int
	StatusText string
	Message    string
	Back       string
}

// PageHandler serves the server-rendered admin screens.
type PageHandler struct {
	store       view.Store
	merchants   MerchantDirectory
	operators   OperatorDirectory
	authService *services.AuthService
	pageSize    int
	wait        time.Duration
	logger      zerolog.Logger
}

// NewPageHandler builds the page handler. wait bounds how long a request
// waits on the store before rendering what it has.
func NewPageHandler(s view.Store, merchants MerchantDirectory, operators OperatorDirectory, authService *services.AuthService, pageSize int, wait time.Duration, logger zerolog.Logger) *PageHandler {
	return &PageHandler{
		store:       s,
		merchants:   merchants,
		operators:   operators,
		authService: authService,
		pageSize:    pageSize,
		wait:        wait,
		logger:      logger,
	}
}

func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, view.ListPath, http.StatusSeeOther)
}

func (h *PageHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", loginPage{pageMeta: pageMeta{Title: "Sign in"}})
}

func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	req := models.LoginRequest{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}

	op, err := h.operators.Authenticate(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Str("email", req.Email).Msg("Login failed")
		h.render(w, http.StatusUnauthorized, "login.html", loginPage{
			pageMeta: pageMeta{Title: "Sign in"},
			Email:    req.Email,
			Error:    "Invalid email or password",
		})
		return
	}

	token, err := h.authService.GenerateToken(op.ID, op.Email, op.Role)
	if err != nil {
		h.logger.Error().Err(err).Msg("Token generation failed")
		h.renderError(w, r, http.StatusInternalServerError, "Failed to start a session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.authService.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, view.ListPath, http.StatusSeeOther)
}

func (h *PageHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *PageHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(mux.Vars(r)["page"])
	if err != nil || page < 0 {
		h.renderError(w, r, http.StatusNotFound, "No such page")
		return
	}

	result, err := h.merchants.ListMerchants(r.Context(), page, h.pageSize)
	if err != nil {
		h.logger.Error().Err(err).Int("page", page).Msg("Listing merchants failed")
		h.renderError(w, r, http.StatusInternalServerError, "Failed to list merchants")
		return
	}

	pages := (result.Total + result.Size - 1) / result.Size
	if pages == 0 {
		pages = 1
	}

	data := listPage{
		pageMeta:  h.meta(r, "Merchants"),
		Merchants: result.Merchants,
		Page:      page + 1,
		Pages:     pages,
		Prev:      page - 1,
		Next:      page + 1,
		HasPrev:   page > 0,
		HasNext:   (page+1)*result.Size < result.Total,
		Deleted:   r.URL.Query().Get("deleted"),
	}
	if r.URL.Query().Get("error") == "delete_failed" {
		data.Error = "The merchant could not be deleted."
	}

	h.render(w, http.StatusOK, "list.html", data)
}

// Detail renders one merchant. The page refreshes itself while the record
// is loading or an operation on it is in flight.
func (h *PageHandler) Detail(w http.ResponseWriter, r *http.Request) {
	_, vm := h.mount(r, mux.Vars(r)["id"])

	code := http.StatusOK
	switch vm.State {
	case view.StateNotFound:
		code = http.StatusNotFound
	case view.StateFailed:
		code = http.StatusBadGateway
	}

	h.render(w, code, "detail.html", h.detailPage(r, vm))
}

func (h *PageHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	d, vm := h.mount(r, vars["id"])
	if vm.State != view.StateReady {
		h.renderModelState(w, r, vm)
		return
	}

	var result <-chan error
	dispatch := func(intent func(string) <-chan error) func(string) {
		return func(v string) { result = intent(v) }
	}

	var editor *view.FieldEditor
	switch vars["field"] {
	case "name":
		editor = view.NewFieldEditor(vm.DisplayName, vm.Busy, dispatch(d.ChangeName))
	case "email":
		editor = view.NewFieldEditor(vm.Merchant.Email, vm.Busy, dispatch(d.ChangeEmail))
	case "phone":
		editor = view.NewFieldEditor(vm.Merchant.Phone, vm.Busy, dispatch(d.ChangePhone))
	case "avatarUrl":
		editor = view.NewFieldEditor(vm.Merchant.AvatarURL, vm.Busy, dispatch(d.ChangeAvatar))
	default:
		h.renderError(w, r, http.StatusNotFound, "Unknown field")
		return
	}

	if _, err := editor.Edit(r.FormValue("value")); err != nil {
		h.renderStoreError(w, r, vm.MerchantID, err)
		return
	}
	h.finish(w, r, vm.MerchantID, result)
}

func (h *PageHandler) SetPremium(w http.ResponseWriter, r *http.Request) {
	d, vm := h.mount(r, mux.Vars(r)["id"])
	if vm.State != view.StateReady {
		h.renderModelState(w, r, vm)
		return
	}
	if vm.Busy {
		h.renderStoreError(w, r, vm.MerchantID, view.ErrFieldDisabled)
		return
	}

	checked, err := parseCheckbox(r.FormValue("premium"))
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "premium must be true or false")
		return
	}
	h.finish(w, r, vm.MerchantID, d.SetPremium(checked))
}

func (h *PageHandler) AddBid(w http.ResponseWriter, r *http.Request) {
	d, vm := h.mount(r, mux.Vars(r)["id"])
	if vm.State != view.StateReady {
		h.renderModelState(w, r, vm)
		return
	}
	if vm.Busy {
		h.renderStoreError(w, r, vm.MerchantID, view.ErrFieldDisabled)
		return
	}

	amount, err := decimal.NewFromString(r.FormValue("amount"))
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Amount must be a number")
		return
	}

	var result <-chan error
	editor := view.NewBidListEditor(vm.Merchant.Bids, func(b models.Bid) { result = d.AddBid(b) }, nil)
	if _, err := editor.Add(models.NewBidRequest{CarTitle: r.FormValue("carTitle"), Amount: amount}); err != nil {
		h.renderStoreError(w, r, vm.MerchantID, err)
		return
	}
	h.finish(w, r, vm.MerchantID, result)
}

func (h *PageHandler) RemoveBid(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	d, vm := h.mount(r, vars["id"])
	if vm.State != view.StateReady {
		h.renderModelState(w, r, vm)
		return
	}
	if vm.Busy {
		h.renderStoreError(w, r, vm.MerchantID, view.ErrFieldDisabled)
		return
	}

	var result <-chan error
	editor := view.NewBidListEditor(vm.Merchant.Bids, nil, func(b models.Bid) { result = d.RemoveBid(b) })
	if err := editor.Remove(vars["bidId"]); err != nil {
		h.renderStoreError(w, r, vm.MerchantID, err)
		return
	}
	h.finish(w, r, vm.MerchantID, result)
}

// Delete always ends on the list page. The outcome rides along in the query.
func (h *PageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	target := view.ListPath
	d := view.NewDetail(h.store, view.NavigatorFunc(func(path string) { target = path }), h.logger)

	mountCtx, cancelMount := withWait(r.Context(), h.wait)
	defer cancelMount()
	await(mountCtx, d.Route(id))

	ctx, cancel := withWait(r.Context(), h.wait)
	defer cancel()

	query := url.Values{}
	if err := d.Delete(ctx); err != nil {
		query.Set("error", "delete_failed")
	} else {
		query.Set("deleted", id)
	}
	http.Redirect(w, r, target+"?"+query.Encode(), http.StatusSeeOther)
}

// mount routes a detail view to id and gives its fetch a bounded time to
// settle, so the model reflects the record rather than our own fetch.
func (h *PageHandler) mount(r *http.Request, id string) (*view.Detail, view.DetailModel) {
	d := view.NewDetail(h.store, view.NavigatorFunc(func(string) {}), h.logger)

	ctx, cancel := withWait(r.Context(), h.wait)
	defer cancel()
	await(ctx, d.Route(id))

	return d, d.Model()
}

// finish waits for a dispatched operation and returns to the detail page.
func (h *PageHandler) finish(w http.ResponseWriter, r *http.Request, id string, result <-chan error) {
	ctx, cancel := withWait(r.Context(), h.wait)
	defer cancel()

	err := await(ctx, result)
	// still running: the detail page refreshes until it settles
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		h.renderStoreError(w, r, id, err)
		return
	}
	http.Redirect(w, r, "/merchants/"+url.PathEscape(id), http.StatusSeeOther)
}

func (h *PageHandler) detailPage(r *http.Request, vm view.DetailModel) detailPage {
	title := "Merchant"
	if vm.Merchant != nil {
		title = vm.DisplayName
	}

	data := detailPage{
		pageMeta: h.meta(r, title),
		Model:    vm,
		Merchant: vm.Merchant,
		CanEdit:  canEdit(r),
	}
	data.Refresh = vm.State == view.StateLoading || vm.Busy

	if m := vm.Merchant; m != nil {
		data.Name = view.NewFieldEditor(vm.DisplayName, vm.Busy, nil)
		data.Email = view.NewFieldEditor(m.Email, vm.Busy, nil)
		data.Phone = view.NewFieldEditor(m.Phone, vm.Busy, nil)
		data.Avatar = view.NewFieldEditor(m.AvatarURL, vm.Busy, nil)
		data.Bids = view.NewBidListEditor(m.Bids, nil, nil).Rows()
		if vm.Error != "" {
			data.Error = vm.Error
		}
	}
	return data
}

func (h *PageHandler) meta(r *http.Request, title string) pageMeta {
	email, _ := r.Context().Value(middleware.OperatorEmailKey).(string)
	return pageMeta{Title: title, Operator: email}
}

func (h *PageHandler) renderModelState(w http.ResponseWriter, r *http.Request, vm view.DetailModel) {
	switch vm.State {
	case view.StateNotFound:
		h.renderError(w, r, http.StatusNotFound, "Merchant not found")
	case view.StateFailed:
		h.renderError(w, r, http.StatusBadGateway, vm.Error)
	default:
		h.renderError(w, r, http.StatusServiceUnavailable, "Merchant is still loading, try again")
	}
}

func (h *PageHandler) renderStoreError(w http.ResponseWriter, r *http.Request, id string, err error) {
	code, _ := storeErrorStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("merchant_id", id).Msg("Merchant operation failed")
	}
	h.renderError(w, r, code, err.Error())
}

func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, code int, message string) {
	back := view.ListPath
	if id := mux.Vars(r)["id"]; id != "" {
		back = "/merchants/" + url.PathEscape(id)
	}

	h.render(w, code, "error.html", errorPage{
		pageMeta:   h.meta(r, http.StatusText(code)),
		Status:     code,
		StatusText: http.StatusText(code),
		Message:    message,
		Back:       back,
	})
}

func (h *PageHandler) render(w http.ResponseWriter, code int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error().Err(err).Str("template", name).Msg("Template rendering failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}

func canEdit(r *http.Request) bool {
	role, _ := middleware.GetOperatorRole(r)
	return role == string(models.RoleAdmin)
}

func parseCheckbox(v string) (bool, error) {
	switch v {
	case "on":
		return true, nil
	case "":
		return false, nil
	}
	return strconv.ParseBool(v)
}

func withWait(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
