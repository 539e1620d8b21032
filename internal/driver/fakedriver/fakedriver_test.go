package fakedriver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stgpx/internal/driver"

	"github.com/stretchr/testify/require"
)

func staticRouter(pages map[string]string) Router {
	return func(url string) (string, error) {
		html, ok := pages[url]
		if !ok {
			return "", fmt.Errorf("no page at %s", url)
		}
		return html, nil
	}
}

func TestWaitForDistinguishesAbsentFromNotReady(t *testing.T) {
	ctx := context.Background()
	d := New(staticRouter(map[string]string{
		"https://example.com/": `<button>Edit</button><button data-not-ready>Export</button>`,
	}))
	require.NoError(t, d.Navigate(ctx, "https://example.com/"))

	edit, err := d.WaitFor(ctx, driver.Locator{CSS: "button", Text: "^Edit$"}, driver.Interactable, time.Second)
	require.NoError(t, err)
	require.NotNil(t, edit)

	_, err = d.WaitFor(ctx, driver.Locator{CSS: "button", Text: "^Export$"}, driver.Interactable, time.Second)
	require.ErrorIs(t, err, driver.ErrNotReady)
	require.ErrorIs(t, err, driver.ErrTimeout)
	var waitErr *driver.WaitError
	require.True(t, errors.As(err, &waitErr))
	require.Equal(t, time.Second, waitErr.Timeout)

	_, err = d.WaitFor(ctx, driver.Locator{CSS: "button", Text: "^Delete$"}, driver.Present, time.Second)
	require.ErrorIs(t, err, driver.ErrNotFound)
	require.True(t, driver.IsAbsent(err))

	_, err = d.WaitFor(ctx, driver.Locator{CSS: "dialog"}, driver.Hidden, time.Second)
	require.NoError(t, err)
}

func TestElementsGoStaleAfterNavigation(t *testing.T) {
	ctx := context.Background()
	d := New(staticRouter(map[string]string{
		"https://example.com/list":      `<ul><li><a class="item" href="/workout/1">one</a></li></ul>`,
		"https://example.com/workout/1": `<h1>one</h1>`,
	}))
	require.NoError(t, d.Navigate(ctx, "https://example.com/list"))

	items, err := d.Elements(ctx, driver.Locator{CSS: "a.item"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	href, ok, err := items[0].Attribute(ctx, "href")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/workout/1", href)

	require.NoError(t, items[0].Click(ctx))
	require.Equal(t, "https://example.com/workout/1", d.URL())

	_, _, err = items[0].Attribute(ctx, "href")
	require.ErrorIs(t, err, driver.ErrStale)
}

func TestTypeAndClearInputs(t *testing.T) {
	ctx := context.Background()
	d := New(staticRouter(map[string]string{
		"https://example.com/": `<input placeholder='Password' value='old'>`,
	}))
	require.NoError(t, d.Navigate(ctx, "https://example.com/"))

	loc := driver.Locator{CSS: "input[placeholder='Password']"}
	field, err := d.WaitFor(ctx, loc, driver.Present, time.Second)
	require.NoError(t, err)
	require.NoError(t, field.Clear(ctx))
	require.NoError(t, field.Type(ctx, "hunter2"))
	require.Equal(t, "hunter2", d.Value(loc))
	require.Equal(t, 1, d.Count(OpType, loc))
}

func TestClosedDriverRejectsCalls(t *testing.T) {
	ctx := context.Background()
	d := New(staticRouter(map[string]string{}))
	require.NoError(t, d.Close())
	require.ErrorIs(t, d.Navigate(ctx, "https://example.com/"), driver.ErrClosed)
	require.Equal(t, 1, d.CloseCount())
}
