package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mudichurmart/storefront/internal/catalog"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrOutOfStock      = errors.New("product is out of stock")
	ErrInactiveProduct = errors.New("product is not available")
)

// LineItem is a product snapshot plus the quantity the shopper wants.
type LineItem struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

func (li LineItem) UnitPrice() decimal.Decimal {
	return li.Product.FinalPrice()
}

func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice().Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Ledger is one shopper's cart. Lines keep insertion order and there is at
// most one line per product id. Every mutation is written through to Storage.
type Ledger struct {
	mu    sync.Mutex
	key   string
	items []LineItem
	store Storage
	log   zerolog.Logger
}

// Open rehydrates the cart saved under key. Missing or unreadable data yields
// an empty cart; Open never fails.
func Open(ctx context.Context, store Storage, key string, log zerolog.Logger) *Ledger {
	l := &Ledger{
		key:   key,
		store: store,
		log:   log.With().Str("component", "cart").Str("cart_key", key).Logger(),
	}

	raw, err := store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return l
	case err != nil:
		l.log.Warn().Err(err).Msg("cart load failed, starting empty")
		return l
	}

	items, err := decode(raw)
	if err != nil {
		l.log.Warn().Err(err).Msg("discarding malformed saved cart")
		return l
	}
	l.items = items
	return l
}

// New returns an empty cart that is not persisted anywhere.
func New() *Ledger {
	return &Ledger{store: NopStorage{}, log: zerolog.Nop()}
}

// Add puts qty units of p in the cart, merging with an existing line for the
// same product. The line's snapshot is refreshed to p and its quantity is
// clamped to p.Stock.
func (l *Ledger) Add(ctx context.Context, p catalog.Product, qty int) (LineItem, error) {
	if qty < 1 {
		return LineItem{}, ErrInvalidQuantity
	}
	if !p.Active {
		return LineItem{}, ErrInactiveProduct
	}
	if p.Stock <= 0 {
		return LineItem{}, ErrOutOfStock
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(p.ID)
	if i < 0 {
		l.items = append(l.items, LineItem{Product: p})
		i = len(l.items) - 1
	}
	line := &l.items[i]
	line.Product = p
	line.Quantity = clamp(line.Quantity+qty, p.Stock)

	return *line, l.persist(ctx)
}

// UpdateQuantity sets a line's quantity. Zero or negative removes the line;
// an unknown product id is a no-op.
func (l *Ledger) UpdateQuantity(ctx context.Context, productID string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(productID)
	if i < 0 {
		return nil
	}
	if qty <= 0 {
		l.items = append(l.items[:i], l.items[i+1:]...)
		return l.persist(ctx)
	}
	l.items[i].Quantity = clamp(qty, l.items[i].Product.Stock)
	return l.persist(ctx)
}

// Remove deletes the line for productID if there is one.
func (l *Ledger) Remove(ctx context.Context, productID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(productID)
	if i < 0 {
		return nil
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return l.persist(ctx)
}

// Clear empties the cart.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = nil
	if err := l.store.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Items returns a copy of the lines in insertion order.
func (l *Ledger) Items() []LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LineItem, len(l.items))
	copy(out, l.items)
	return out
}

// Get returns the line for productID.
func (l *Ledger) Get(productID string) (LineItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.indexOf(productID); i >= 0 {
		return l.items[i], true
	}
	return LineItem{}, false
}

// TotalAmount is recomputed from the current lines on every call.
func (l *Ledger) TotalAmount() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Total(l.items)
}

// Total sums the line totals of lines.
func Total(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range lines {
		total = total.Add(li.Total())
	}
	return total
}

// Count is the number of units across all lines.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, li := range l.items {
		n += li.Quantity
	}
	return n
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *Ledger) IsEmpty() bool {
	return l.Len() == 0
}

func (l *Ledger) indexOf(productID string) int {
	for i := range l.items {
		if l.items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

func (l *Ledger) persist(ctx context.Context) error {
	raw, err := encode(l.items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := l.store.Save(ctx, l.key, raw); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func clamp(qty, stock int) int {
	if stock > 0 && qty > stock {
		return stock
	}
	return qty
}

const formatVersion = 1

type savedCart struct {
	Version int        `json:"version"`
	Items   []LineItem `json:"items"`
}

func encode(items []LineItem) ([]byte, error) {
	return json.Marshal(savedCart{Version: formatVersion, Items: items})
}

func decode(raw []byte) ([]LineItem, error) {
	var sc savedCart
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, err
	}
	if sc.Version != formatVersion {
		return nil, fmt.Errorf("unsupported cart version %d", sc.Version)
	}
	seen := make(map[string]bool, len(sc.Items))
	for _, li := range sc.Items {
		if li.Product.ID == "" || li.Quantity < 1 {
			return nil, fmt.Errorf("invalid line %q x%d", li.Product.ID, li.Quantity)
		}
		if seen[li.Product.ID] {
			return nil, fmt.Errorf("duplicate line %q", li.Product.ID)
		}
		seen[li.Product.ID] = true
	}
	return sc.Items, nil
}
