package shopsim

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const sessionCookie = "shopsim_session"

// Server renders catalog pages with the same markup the WebShop parser reads.
type Server struct {
	echo    *echo.Echo
	catalog *Catalog
	logger  *zap.Logger

	mu        sync.Mutex
	carts     map[string][]string // session id -> item ids
	lastQuery map[string]string
}

func NewServer(catalog *Catalog, logger *zap.Logger) *Server {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	s := &Server{
		echo:      echo.New(),
		catalog:   catalog,
		logger:    logger.Named("shopsim"),
		carts:     make(map[string][]string),
		lastQuery: make(map[string]string),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{Level: 5}))

	s.echo.GET("/", s.home)
	s.echo.POST("/abc", s.search)
	s.echo.GET("/abc", s.search)
	s.echo.GET("/item/:id", s.item)
	s.echo.GET("/cart", s.cart)
	s.echo.POST("/cart/:id", s.addToCart)
	s.echo.GET("/cart/add/:id", s.addToCart)
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.echo }

// Serve listens on addr until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("WebShop simulator listening", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

type pageData struct {
	Query     string
	Products  []Item
	Detail    *Item
	Cart      []Item
	PrevQuery string
	Section   string
	Content   string
}

func (s *Server) render(c echo.Context, data pageData) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (s *Server) home(c echo.Context) error {
	return s.render(c, pageData{})
}

func (s *Server) search(c echo.Context) error {
	q := strings.TrimSpace(c.FormValue("search_query"))
	sid := s.session(c)
	s.mu.Lock()
	s.lastQuery[sid] = q
	s.mu.Unlock()

	results := s.catalog.Search(q)
	s.logger.Debug("Search", zap.String("query", q), zap.Int("results", len(results)))
	return s.render(c, pageData{Query: q, Products: results})
}

func (s *Server) item(c echo.Context) error {
	it, ok := s.catalog.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no such item")
	}
	sid := s.session(c)
	s.mu.Lock()
	prev := s.lastQuery[sid]
	s.mu.Unlock()

	data := pageData{Products: []Item{it}, Detail: &it, PrevQuery: prev}
	switch section := c.QueryParam("section"); section {
	case "":
	case "description":
		data.Section, data.Content = section, it.Description
	case "features":
		data.Section, data.Content = section, strings.Join(it.Features, "; ")
	case "reviews":
		data.Section, data.Content = section, "No reviews yet."
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown section")
	}
	return s.render(c, data)
}

func (s *Server) addToCart(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.catalog.Get(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no such item")
	}
	sid := s.session(c)
	s.mu.Lock()
	s.carts[sid] = append(s.carts[sid], id)
	s.mu.Unlock()
	return c.Redirect(http.StatusSeeOther, "/cart")
}

func (s *Server) cart(c echo.Context) error {
	sid := s.session(c)
	s.mu.Lock()
	ids := append([]string(nil), s.carts[sid]...)
	s.mu.Unlock()

	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		if it, ok := s.catalog.Get(id); ok {
			items = append(items, it)
		}
	}
	return s.render(c, pageData{Cart: items})
}

// session returns the caller's session id, issuing one when missing.
func (s *Server) session(c echo.Context) string {
	if ck, err := c.Cookie(sessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	sid := uuid.NewString()
	c.SetCookie(&http.Cookie{Name: sessionCookie, Value: sid, Path: "/", HttpOnly: true})
	return sid
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><title>WebShop</title></head>
<body>
<form method="post" action="/abc">
  <input type="text" name="search_query" value="{{.Query}}">
  <button type="submit" class="btn btn-primary">Search</button>
</form>
<a class="btn" href="/cart">View Cart</a>
{{if or .Products .Detail .Cart}}<a class="btn" href="/">Back to Search</a>{{end}}
{{range .Products}}
<div class="col-lg-12 mx-auto list-group-item">
  <h4 class="product-asin"><a class="product-link" href="/item/{{.ID}}">{{.ID}}</a></h4>
  <h4 class="product-title">{{.Title}}</h4>
  <h5 class="product-price">${{printf "%.2f" .Price}}</h5>
</div>
{{end}}
{{with .Detail}}
<div class="item-detail">
  <a class="btn" href="/abc?search_query={{$.PrevQuery}}">&lt; Prev</a>
  <a class="btn" href="/item/{{.ID}}?section=description">Description</a>
  <a class="btn" href="/item/{{.ID}}?section=features">Features</a>
  <a class="btn" href="/item/{{.ID}}?section=reviews">Reviews</a>
  <a class="btn" href="/cart/add/{{.ID}}">Add to Cart</a>
  <form method="post" action="/cart/{{.ID}}"><button class="btn btn-buy">Buy Now</button></form>
</div>
{{end}}
{{if .Section}}<div class="item-section" data-section="{{.Section}}">{{.Section}}: {{.Content}}</div>{{end}}
{{range .Cart}}
<div class="cart-item" data-id="{{.ID}}">
  <span class="cart-item-title">{{.Title}}</span>
  <span class="cart-item-price">${{printf "%.2f" .Price}}</span>
</div>
{{end}}
</body></html>
`))
