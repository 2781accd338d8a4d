// Package cart — корзина текущей идентичности с локальной персистентностью,
// слиянием гостевой корзины при входе и постановкой событий синхронизации
// в исходящую очередь.
package cart

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/observer"
	"github.com/vladislavdragonenkov/storefront/internal/storage/kvjson"
)

// Options задаёт необязательные зависимости корзины.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.SessionMetrics
	Mirror  domain.MirrorQueue
}

// Option настраивает Store.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.SessionMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithMirrorQueue задаёт исходящую очередь синхронизации с удалённым сервисом.
func WithMirrorQueue(queue domain.MirrorQueue) Option {
	return func(opts *Options) {
		opts.Mirror = queue
	}
}

// Store хранит позиции корзины для загруженной идентичности.
// Мутации синхронны: после возврата состояние в памяти и в хранилище уже новое,
// удалённая синхронизация идёт отдельно через очередь.
type Store struct {
	mu        sync.Mutex
	identity  domain.IdentitySource
	persister *kvjson.Persister
	mirror    domain.MirrorQueue
	metrics   *metrics.SessionMetrics
	logger    *log.Entry
	observers observer.Registry

	items []domain.CartLineItem
	owner domain.Identity
}

// New создаёт корзину. До вызова Load корзина пуста и принадлежит гостю.
func New(kv domain.KeyValueStore, identity domain.IdentitySource, options ...Option) *Store {
	var opts Options
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-store")
	}

	var recorder kvjson.Recorder
	if opts.Metrics != nil {
		recorder = opts.Metrics
	}

	return &Store{
		identity:  identity,
		persister: kvjson.NewPersister(kv, metrics.StoreCart, logger, recorder),
		mirror:    opts.Mirror,
		metrics:   opts.Metrics,
		logger:    logger,
		items:     []domain.CartLineItem{},
		owner:     domain.Guest,
	}
}

// Load перечитывает корзину текущей идентичности. Вызывать после каждой
// возможной смены идентичности: сама корзина этого не отслеживает.
// Сохранённые данные нормализуются: повторы склеиваются, позиции без
// productId или с количеством <= 0 отбрасываются.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	owner := s.identity.CurrentIdentity(ctx)
	s.owner = owner
	s.items = s.loadItems(ctx, owner)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreCart, "load")
	s.observers.Notify()
}

// AddItem увеличивает количество существующей позиции или добавляет новую.
// Quantity <= 0 трактуется как 1, итог ограничен CartMaxQuantity.
// Для аутентифицированной идентичности в очередь ставится событие
// синхронизации; его сбой локальную мутацию не отменяет.
func (s *Store) AddItem(ctx context.Context, item domain.CartLineItem) error {
	if item.ProductID <= 0 {
		return domain.ErrProductIDRequired
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	item.Quantity = domain.AddCartQuantity(0, item.Quantity)

	s.mu.Lock()
	if idx := s.indexOf(item.ProductID); idx >= 0 {
		s.items[idx].Quantity = domain.AddCartQuantity(s.items[idx].Quantity, item.Quantity)
	} else {
		s.items = append(s.items, item)
	}
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreCart, "add")
	s.enqueueMirror(ctx, item.ProductID, item.Quantity)
	s.observers.Notify()
	return nil
}

// AddProduct нормализует товар каталога и добавляет его в корзину.
func (s *Store) AddProduct(ctx context.Context, p domain.Product, quantity int) error {
	item, err := domain.NewCartLineItem(p, quantity)
	if err != nil {
		return err
	}
	return s.AddItem(ctx, item)
}

// RemoveItem удаляет позицию; отсутствие позиции не ошибка.
func (s *Store) RemoveItem(ctx context.Context, productID int64) {
	s.mu.Lock()
	if idx := s.indexOf(productID); idx >= 0 {
		s.items = append(s.items[:idx], s.items[idx+1:]...)
	}
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreCart, "remove")
	s.observers.Notify()
}

// UpdateQuantity выставляет количество существующей позиции. Неявно позицию
// не удаляет: quantity вне 1..CartMaxQuantity возвращает
// ErrCartQuantityInvalid, отсутствие позиции даёт ErrCartItemNotFound.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 || quantity > domain.CartMaxQuantity {
		return domain.ErrCartQuantityInvalid
	}

	s.mu.Lock()
	idx := s.indexOf(productID)
	if idx < 0 {
		s.mu.Unlock()
		return domain.ErrCartItemNotFound
	}
	s.items[idx].Quantity = quantity
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreCart, "update_quantity")
	s.observers.Notify()
	return nil
}

// SetQuantity — единая операция изменения количества: quantity <= 0 удаляет
// позицию, иначе выставляет количество существующей позиции.
func (s *Store) SetQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		s.RemoveItem(ctx, productID)
		return nil
	}
	return s.UpdateQuantity(ctx, productID, quantity)
}

// Clear очищает корзину и сохраняет пустой список.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.items = []domain.CartLineItem{}
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.StoreCart, "clear")
	s.observers.Notify()
}

// MergeGuestIntoIdentity вызывается один раз в момент успешной аутентификации.
// Позиции гостевой корзины добавляются к корзине текущей идентичности
// (совпадающие productId суммируются), результат сохраняется, и только после
// успешной записи гостевой ключ удаляется. Если запись не удалась, гостевая
// корзина остаётся и слияние повторится при следующем входе.
// Повторный вызов без гостевой корзины ничего не меняет.
func (s *Store) MergeGuestIntoIdentity(ctx context.Context) {
	target := s.identity.CurrentIdentity(ctx)
	if target.IsGuest() {
		s.logger.Debug("skip guest cart merge: identity is not authenticated")
		return
	}

	guestKey := domain.CartKey(domain.Guest)
	if !s.persister.Exists(ctx, guestKey) {
		return
	}
	guestItems := s.loadItems(ctx, domain.Guest)

	s.mu.Lock()
	if s.owner != target {
		s.items = s.loadItems(ctx, target)
		s.owner = target
	}
	for _, g := range guestItems {
		if idx := s.indexOf(g.ProductID); idx >= 0 {
			s.items[idx].Quantity = domain.AddCartQuantity(s.items[idx].Quantity, g.Quantity)
		} else {
			s.items = append(s.items, g)
		}
	}
	saved := s.persistLocked(ctx)
	if saved {
		s.persister.Delete(ctx, guestKey)
	}
	s.mu.Unlock()

	if !saved {
		// События синхронизации уйдут при повторном слиянии.
		s.logger.WithField("identity", target.String()).Warn("guest cart kept: merged cart was not saved")
		s.observers.Notify()
		return
	}

	s.logger.WithFields(log.Fields{
		"identity":    target.String(),
		"guest_items": len(guestItems),
	}).Info("guest cart merged")
	s.metrics.RecordGuestMerge()

	for _, g := range guestItems {
		s.enqueueMirror(ctx, g.ProductID, g.Quantity)
	}
	s.observers.Notify()
}

// Items возвращает копию позиций в порядке добавления.
func (s *Store) Items() []domain.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CartLineItem, len(s.items))
	copy(out, s.items)
	return out
}

// Owner возвращает идентичность, чья корзина сейчас загружена.
func (s *Store) Owner() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Count возвращает число различных позиций.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// TotalQuantity возвращает суммарное количество единиц товара.
func (s *Store) TotalQuantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, item := range s.items {
		total += item.Quantity
	}
	return total
}

// Subtotal считает сумму позиций без накопления ошибок float.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := decimal.Zero
	for _, item := range s.items {
		sum = sum.Add(decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// Subscribe регистрирует наблюдателя, вызываемого после каждой мутации.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	return s.observers.Subscribe(fn)
}

func (s *Store) indexOf(productID int64) int {
	for i, item := range s.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) loadItems(ctx context.Context, owner domain.Identity) []domain.CartLineItem {
	return domain.NormalizeCartItems(kvjson.Load[domain.CartLineItem](ctx, s.persister, domain.CartKey(owner)))
}

// persistLocked сохраняет позиции под ключом владельца и сообщает, удалась ли запись.
func (s *Store) persistLocked(ctx context.Context) bool {
	return kvjson.Save(ctx, s.persister, domain.CartKey(s.owner), s.items)
}

// enqueueMirror ставит событие cart.item_added, если идентичность аутентифицирована.
func (s *Store) enqueueMirror(ctx context.Context, productID int64, qty int) {
	if s.mirror == nil {
		return
	}
	id := s.identity.CurrentIdentity(ctx)
	if id.IsGuest() {
		return
	}
	if _, ok := s.identity.SessionToken(ctx); !ok {
		return
	}

	payload, err := json.Marshal(domain.CartItemAddedPayload{
		ProductID: productID,
		Qty:       qty,
	})
	if err != nil {
		s.logger.WithError(err).Warn("failed to marshal cart mirror payload")
		s.metrics.RecordMirrorEnqueueFailed()
		return
	}

	msg, err := s.mirror.Enqueue(domain.OutboxMessage{
		AggregateType: domain.AggregateCart,
		AggregateID:   id.String(),
		EventType:     domain.EventCartItemAdded,
		Payload:       payload,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"identity":   id.String(),
			"product_id": productID,
		}).Warn("failed to enqueue cart mirror event")
		s.metrics.RecordMirrorEnqueueFailed()
		return
	}

	s.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"product_id": productID,
		"qty":        qty,
	}).Debug("cart mirror event enqueued")
	s.metrics.RecordMirrorEnqueued()
}
