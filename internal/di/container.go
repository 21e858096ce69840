// internal/di/container.go
package di

import (
	"errors"
	"fmt"
	"sync"
)

// Container 是一个简单的依赖注入容器，按注册顺序记录服务
type Container struct {
	services map[string]interface{}
	order    []string
	mutex    sync.RWMutex
}

// Stopper 在容器关闭时需要停止的服务
type Stopper interface {
	Stop()
}

// Closer 在容器关闭时需要释放资源的服务
type Closer interface {
	Close() error
}

// 全局容器实例（单例模式）
var (
	globalContainer *Container
	once            sync.Once
)

// NewContainer 创建一个新的依赖注入容器
func NewContainer() *Container {
	return &Container{
		services: make(map[string]interface{}),
	}
}

// GetContainer 获取全局容器实例
func GetContainer() *Container {
	once.Do(func() {
		globalContainer = NewContainer()
	})
	return globalContainer
}

// Register 在容器中注册一个服务实例，同名服务会被替换
func (c *Container) Register(name string, service interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.services[name]; !exists {
		c.order = append(c.order, name)
	}
	c.services[name] = service
}

// Get 从容器中获取一个服务实例
func (c *Container) Get(name string) interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.services[name]
}

// Resolve 按名称取出服务并断言为 T
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	service := c.Get(name)
	if service == nil {
		return zero, fmt.Errorf("service %q is not registered", name)
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service %q has type %T, expected %T", name, service, zero)
	}
	return typed, nil
}

// Has 检查容器中是否存在指定名称的服务
func (c *Container) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	_, exists := c.services[name]
	return exists
}

// Remove 从容器中移除一个服务
func (c *Container) Remove(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.services, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Clear 清空容器中的所有服务
func (c *Container) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.services = make(map[string]interface{})
	c.order = nil
}

// GetNames 按注册顺序返回服务名称
func (c *Container) GetNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]string(nil), c.order...)
}

// Shutdown 按注册的逆序停止或关闭服务，并清空容器
func (c *Container) Shutdown() error {
	c.mutex.Lock()
	order := c.order
	services := c.services
	c.services = make(map[string]interface{})
	c.order = nil
	c.mutex.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		switch svc := services[order[i]].(type) {
		case Closer:
			if err := svc.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", order[i], err))
			}
		case Stopper:
			svc.Stop()
		}
	}
	return errors.Join(errs...)
}
