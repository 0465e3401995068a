// Hotelsite is a small server-rendered stand-in for the hotel booking site the scenarios drive.
// It implements the booker-v2 selector contract: a public home page with room cards,
// a reservation flow, and a cookie-authenticated admin area with a bookings report.
package hotelsite

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TheLab-ms/innkeeper/engine"
	"github.com/TheLab-ms/innkeeper/engine/db"
	"github.com/TheLab-ms/innkeeper/static"
	"github.com/julienschmidt/httprouter"
)

const migration = `
CREATE TABLE IF NOT EXISTS bookings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    room_id INTEGER NOT NULL,
    firstname TEXT NOT NULL,
    lastname TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT '',
    checkin TEXT NOT NULL,
    checkout TEXT NOT NULL
) STRICT;

CREATE INDEX IF NOT EXISTS bookings_checkin_idx ON bookings (checkin);
`

const (
	dateLayout  = "2006-01-02"
	tokenCookie = "token"
	tokenTTL    = 12 * time.Hour
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Room struct {
	ID          int
	Name        string
	Description string
	Price       int
}

// DefaultRooms is the inventory listed on the home page, in display order.
var DefaultRooms = []Room{
	{ID: 1, Name: "Single", Description: "A cosy room for one with a garden view.", Price: 100},
	{ID: 2, Name: "Double", Description: "A bright double room with an en-suite.", Price: 150},
	{ID: 3, Name: "Suite", Description: "Our largest room with a separate lounge.", Price: 225},
}

type Booking struct {
	ID        int64
	RoomID    int
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Start     string
	End       string
}

type Module struct {
	db     *sql.DB
	tokens *engine.TokenIssuer
	rooms  []Room

	username string
	password string

	// Now is used to default stay dates. Tests pin it.
	Now func() time.Time
}

func New(d *sql.DB, username, password string) *Module {
	db.MustMigrate(d, migration)
	return &Module{
		db:       d,
		tokens:   engine.NewTokenIssuer("hotelsite"),
		rooms:    DefaultRooms,
		username: username,
		password: password,
		Now:      time.Now,
	}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.HandleFunc("GET", "/healthz", engine.ServeHealthProbe(m.db))
	router.HandleFunc("GET", "/assets/*filepath", http.FileServer(http.FS(static.Assets)).ServeHTTP)

	router.Handle("GET", "/", m.renderHome)
	router.Handle("GET", "/reservation/:id", m.renderReservation)
	router.Handle("POST", "/reservation/:id/book", m.handleBooking)

	router.Handle("GET", "/admin", m.renderLogin)
	router.Handle("POST", "/admin/login", m.handleLogin)
	router.Handle("POST", "/admin/logout", m.handleLogout)
	router.Handle("GET", "/admin/rooms", m.withAdmin(m.renderRooms))
	router.Handle("GET", "/admin/report", m.withAdmin(m.renderReport))
	router.Handle("GET", "/api/bookings", m.withAdmin(m.listBookingsJSON))
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	// Stays that ended a month ago are no longer interesting to anyone.
	mgr.Add(engine.Poll(time.Hour, func(ctx context.Context) bool {
		cutoff := m.Now().AddDate(0, -1, 0).Format(dateLayout)
		return engine.Cleanup(m.db, "past bookings", "DELETE FROM bookings WHERE checkout < ?", cutoff)(ctx)
	}))
}

type page struct {
	Title    string
	Rooms    []Room
	Room     *Room
	Error    string
	Errors   []string
	Username string
	Start    string
	End      string
	StayURL  string
	ShowForm bool
	Form     Booking
	Booking  *Booking
	Bookings []*Booking
}

func (m *Module) renderHome(r *http.Request, ps httprouter.Params) engine.Response {
	return engine.Template(templates, "home.html", &page{Title: "Welcome", Rooms: m.rooms})
}

func (m *Module) renderReservation(r *http.Request, ps httprouter.Params) engine.Response {
	room := m.room(ps.ByName("id"))
	if room == nil {
		return engine.ClientErrorf(http.StatusNotFound, "room not found")
	}
	q := r.URL.Query()
	start, end := m.stay(q.Get("start"), q.Get("end"))
	return engine.Template(templates, "reservation.html", &page{
		Title:    room.Name,
		Room:     room,
		Start:    start,
		End:      end,
		StayURL:  ReservationURL(room.ID, start, end),
		ShowForm: q.Get("book") != "",
	})
}

func (m *Module) handleBooking(r *http.Request, ps httprouter.Params) engine.Response {
	room := m.room(ps.ByName("id"))
	if room == nil {
		return engine.ClientErrorf(http.StatusNotFound, "room not found")
	}

	b := &Booking{
		RoomID:    room.ID,
		FirstName: strings.TrimSpace(r.FormValue("firstname")),
		LastName:  strings.TrimSpace(r.FormValue("lastname")),
		Email:     strings.TrimSpace(r.FormValue("email")),
		Phone:     strings.TrimSpace(r.FormValue("phone")),
		Start:     r.FormValue("start"),
		End:       r.FormValue("end"),
	}
	if errs := b.validate(); len(errs) > 0 {
		return engine.TemplateWithStatus(http.StatusBadRequest, templates, "reservation.html", &page{
			Title:    room.Name,
			Room:     room,
			Start:    b.Start,
			End:      b.End,
			StayURL:  ReservationURL(room.ID, b.Start, b.End),
			ShowForm: true,
			Form:     *b,
			Errors:   errs,
		})
	}

	err := m.db.QueryRowContext(r.Context(), "INSERT INTO bookings (room_id, firstname, lastname, email, phone, checkin, checkout) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		b.RoomID, b.FirstName, b.LastName, b.Email, b.Phone, b.Start, b.End).Scan(&b.ID)
	if err != nil {
		return engine.Errorf("inserting booking: %s", err)
	}
	return engine.Template(templates, "confirmation.html", &page{Title: "Booking Confirmed", Room: room, Booking: b})
}

func (m *Module) renderLogin(r *http.Request, ps httprouter.Params) engine.Response {
	if m.authenticated(r) {
		return engine.Redirect("/admin/rooms", http.StatusFound)
	}
	return engine.Template(templates, "login.html", &page{Title: "Login"})
}

func (m *Module) handleLogin(r *http.Request, ps httprouter.Params) engine.Response {
	username := r.FormValue("username")
	if !m.checkCredentials(username, r.FormValue("password")) {
		return engine.TemplateWithStatus(http.StatusUnauthorized, templates, "login.html", &page{
			Title:    "Login",
			Error:    "Invalid credentials",
			Username: username,
		})
	}

	tok, err := m.tokens.Sign(username, tokenTTL)
	if err != nil {
		return engine.Errorf("signing admin token: %s", err)
	}
	cook := &http.Cookie{
		Name:     tokenCookie,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(tokenTTL),
	}
	return engine.WithCookie(cook, engine.Redirect("/admin/rooms", http.StatusSeeOther))
}

func (m *Module) handleLogout(r *http.Request, ps httprouter.Params) engine.Response {
	cook := &http.Cookie{Name: tokenCookie, Path: "/", MaxAge: -1}
	return engine.WithCookie(cook, engine.Redirect("/", http.StatusSeeOther))
}

func (m *Module) renderRooms(r *http.Request, ps httprouter.Params) engine.Response {
	return engine.Template(templates, "rooms.html", &page{Title: "Rooms", Rooms: m.rooms})
}

func (m *Module) renderReport(r *http.Request, ps httprouter.Params) engine.Response {
	bookings, err := m.ListBookings(r.Context())
	if err != nil {
		return engine.Errorf("listing bookings: %s", err)
	}
	return engine.Template(templates, "report.html", &page{Title: "Report", Bookings: bookings})
}

func (m *Module) listBookingsJSON(r *http.Request, ps httprouter.Params) engine.Response {
	bookings, err := m.ListBookings(r.Context())
	if err != nil {
		return engine.Errorf("listing bookings: %s", err)
	}
	return engine.JSON(bookings)
}

// ListBookings returns every booking ordered by check-in date.
func (m *Module) ListBookings(ctx context.Context) ([]*Booking, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT id, room_id, firstname, lastname, email, phone, checkin, checkout FROM bookings ORDER BY checkin, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*Booking
	for rows.Next() {
		b := &Booking{}
		if err := rows.Scan(&b.ID, &b.RoomID, &b.FirstName, &b.LastName, &b.Email, &b.Phone, &b.Start, &b.End); err != nil {
			return nil, err
		}
		all = append(all, b)
	}
	return all, rows.Err()
}

// withAdmin sends visitors without a valid admin token back to the login form.
func (m *Module) withAdmin(next engine.Handler) engine.Handler {
	return func(r *http.Request, ps httprouter.Params) engine.Response {
		if !m.authenticated(r) {
			return engine.Redirect("/admin", http.StatusFound)
		}
		return next(r, ps)
	}
}

func (m *Module) authenticated(r *http.Request) bool {
	cook, err := r.Cookie(tokenCookie)
	if err != nil {
		return false
	}
	_, err = m.tokens.Verify(cook.Value)
	return err == nil
}

func (m *Module) checkCredentials(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(m.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(m.password)) == 1
	return userOK && passOK
}

func (m *Module) room(id string) *Room {
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil
	}
	for i := range m.rooms {
		if m.rooms[i].ID == n {
			return &m.rooms[i]
		}
	}
	return nil
}

// stay fills in missing or malformed dates with tomorrow and the day after.
func (m *Module) stay(start, end string) (string, string) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		s = m.Now().AddDate(0, 0, 1)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil || !e.After(s) {
		e = s.AddDate(0, 0, 1)
	}
	return s.Format(dateLayout), e.Format(dateLayout)
}

func (b *Booking) validate() []string {
	var errs []string
	for _, f := range []struct{ name, val string }{
		{"Firstname", b.FirstName},
		{"Lastname", b.LastName},
	} {
		if n := len(f.val); n < 2 || n > 30 {
			errs = append(errs, fmt.Sprintf("%s must be between 2 and 30 characters", f.name))
		}
	}
	if b.Email != "" && !strings.Contains(b.Email, "@") {
		errs = append(errs, "Email must be a well-formed email address")
	}
	start, err1 := time.Parse(dateLayout, b.Start)
	end, err2 := time.Parse(dateLayout, b.End)
	if err := errors.Join(err1, err2); err != nil {
		errs = append(errs, "Stay dates are invalid")
	} else if !end.After(start) {
		errs = append(errs, "Checkout must be after checkin")
	}
	return errs
}

// ReservationURL is the reservation page for a room and stay, relative to the site root.
func ReservationURL(roomID int, start, end string) string {
	return fmt.Sprintf("/reservation/%d?start=%s&end=%s", roomID, url.QueryEscape(start), url.QueryEscape(end))
}
