package di

import (
	"errors"
	"reflect"
	"testing"
)

type recorder struct {
	name  string
	calls *[]string
	err   error
}

func (r *recorder) Close() error {
	*r.calls = append(*r.calls, r.name)
	return r.err
}

type stopper struct {
	calls *[]string
}

func (s *stopper) Stop() {
	*s.calls = append(*s.calls, "stopper")
}

func TestRegisterKeepsOrder(t *testing.T) {
	c := NewContainer()
	c.Register("storage", 1)
	c.Register("backend", 2)
	c.Register("storage", 3)

	if got := c.GetNames(); !reflect.DeepEqual(got, []string{"storage", "backend"}) {
		t.Fatalf("注册顺序不正确: %v", got)
	}
	if c.Get("storage") != 3 {
		t.Fatal("同名注册应替换服务实例")
	}

	c.Remove("storage")
	if c.Has("storage") || len(c.GetNames()) != 1 {
		t.Fatal("移除后不应再包含该服务")
	}
}

func TestResolve(t *testing.T) {
	c := NewContainer()
	c.Register("name", "screenplay")

	got, err := Resolve[string](c, "name")
	if err != nil || got != "screenplay" {
		t.Fatalf("应取出字符串服务: %q %v", got, err)
	}
	if _, err := Resolve[int](c, "name"); err == nil {
		t.Fatal("类型不匹配时应返回错误")
	}
	if _, err := Resolve[string](c, "missing"); err == nil {
		t.Fatal("未注册的服务应返回错误")
	}
}

func TestShutdownReverseOrder(t *testing.T) {
	var calls []string
	c := NewContainer()
	c.Register("first", &recorder{name: "first", calls: &calls})
	c.Register("plain", struct{}{})
	c.Register("second", &stopper{calls: &calls})
	c.Register("third", &recorder{name: "third", calls: &calls, err: errors.New("boom")})

	err := c.Shutdown()
	if err == nil {
		t.Fatal("关闭失败的错误应被返回")
	}
	if !reflect.DeepEqual(calls, []string{"third", "stopper", "first"}) {
		t.Fatalf("应按注册逆序关闭: %v", calls)
	}
	if len(c.GetNames()) != 0 {
		t.Fatal("关闭后容器应为空")
	}
}
